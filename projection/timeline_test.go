package projection

import (
	"context"
	"secure-chat/domain"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestTimeline_Consume(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(2)
	ctx := context.Background()

	// Given three session events for a timeline keeping two
	for _, evt := range []domain.SessionEvent{
		{Type: domain.SessionJoined, Username: "alice"},
		{Type: domain.SessionRejected, RemoteAddr: "10.0.0.9:4000"},
		{Type: domain.SessionLeft, Username: "alice"},
	} {
		req.NoError(timeline.Consume(ctx, evt))
	}

	// Then only the two latest are kept, oldest first
	recent := timeline.Recent()
	req.Equal([]domain.SessionEventType{domain.SessionRejected, domain.SessionLeft},
		lo.Map(recent, func(e domain.SessionEvent, _ int) domain.SessionEventType { return e.Type }))

	// And totals count everything seen
	req.Equal(map[string]any{"joined": 1, "left": 1, "rejected": 1}, timeline.Stats())
}

func TestTimeline_Recent_IsACopy(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(0)
	req.NoError(timeline.Consume(context.Background(), domain.SessionEvent{Type: domain.SessionJoined, Username: "bob"}))

	recent := timeline.Recent()
	recent[0].Username = "mallory"

	req.Equal(domain.Username("bob"), timeline.Recent()[0].Username)
}
