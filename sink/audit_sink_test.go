package sink

import (
	"context"
	"fmt"
	"log/slog"
	"secure-chat/domain"
	"secure-chat/mocks"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuditSink_Consume(t *testing.T) {
	tests := []struct {
		name   string
		kind   domain.SessionEventType
		stored bool
	}{
		{name: "joined", kind: domain.SessionJoined, stored: true},
		{name: "left", kind: domain.SessionLeft, stored: true},
		{name: "rejected", kind: domain.SessionRejected, stored: true},
		{name: "unknown", kind: domain.SessionEventType("renamed"), stored: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			repository := mocks.NewMockIAuditRepository(ctrl)
			evt := domain.SessionEvent{ID: uuid.New(), Type: tt.kind}

			times := 0
			if tt.stored {
				times = 1
			}
			repository.EXPECT().Store(evt).Return(nil).Times(times)

			err := NewAuditSink(repository, logs.GetLoggerFromLevel(slog.LevelDebug)).Consume(context.Background(), evt)
			req.NoError(err)
		})
	}
}

func TestAuditSink_Consume_RepositoryFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIAuditRepository(ctrl)
	failure := fmt.Errorf("value log full")

	repository.EXPECT().Store(gomock.Any()).Return(failure)

	err := NewAuditSink(repository, logs.GetLoggerFromLevel(slog.LevelDebug)).
		Consume(context.Background(), domain.SessionEvent{Type: domain.SessionLeft})
	req.ErrorIs(err, failure)
}
