package moderation

import (
	"log/slog"
	"secure-chat/errors"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestFilter_Apply(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	filter, err := NewFilter([]string{"snake", "mushroom", "badger"}, '*', log)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		text    string
		hits    []string
	}{
		{
			name:    "plain word",
			payload: "that snake again",
			text:    "that ***** again",
			hits:    []string{"snake"},
		},
		{
			name:    "repeated word is reported once",
			payload: "snake snake",
			text:    "***** *****",
			hits:    []string{"snake"},
		},
		{
			name:    "separators inside the word are masked, trailing ones kept",
			payload: "S.N.A.K.E!",
			text:    "*********!",
			hits:    []string{"snake"},
		},
		{
			name:    "lookalike digits",
			payload: "a mushr00m pizza",
			text:    "a ******** pizza",
			hits:    []string{"mushroom"},
		},
		{
			name:    "hits follow payload order",
			payload: "badger meets snake",
			text:    "****** meets *****",
			hits:    []string{"badger", "snake"},
		},
		{
			name:    "accented text untouched",
			payload: "un été sans badger",
			text:    "un été sans ******",
			hits:    []string{"badger"},
		},
		{
			name:    "clean payload",
			payload: "hello bob",
			text:    "hello bob",
		},
		{
			name:    "only separators",
			payload: "... !!!",
			text:    "... !!!",
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)

			result := filter.Apply(tt.payload)

			req.Equal(tt.text, result.Text)
			req.Equal(tt.hits, result.Hits)
			req.Equal(len(tt.hits) > 0, result.Censored())
		})
	}
}

func TestNewFilter_SeparatorOnlyWords(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a dictionary where only one entry holds letters
	filter, err := NewFilter([]string{"...", "", "snake"}, '#', log)
	req.NoError(err)

	// Then the other entries never match
	req.Equal("hey ...", filter.Apply("hey ...").Text)
	req.Equal("a #####", filter.Apply("a snake").Text)

	// And a dictionary without letters is refused
	_, err = NewFilter([]string{"--", " "}, '#', log)
	req.ErrorIs(err, errors.ErrEmptyWords)
}
