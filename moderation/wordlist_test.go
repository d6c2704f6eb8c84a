package moderation

import (
	"secure-chat/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadWordLists(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"censored/en.txt":   {Data: []byte("snake\r\nbadger\n\n# reviewed\n")},
		"censored/fr.txt":   {Data: []byte("  blaireau \nbadger")},
		"censored/de.txt":   {Data: []byte("# nothing yet\n")},
		"censored/NOTES.md": {Data: []byte("not a list")},
	}

	lists, err := LoadWordLists(fsys, "censored")

	req.NoError(err)
	req.Equal([]string{"snake", "badger"}, lists["en"])
	req.Equal([]string{"en", "fr"}, lists.Languages())
	req.Equal([]string{"badger", "blaireau", "snake"}, lists.Words())
}

func TestLoadWordLists_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		err  error
	}{
		{
			name: "blank lists",
			fsys: fstest.MapFS{"censored/en.txt": {Data: []byte("\n \n")}},
			err:  errors.ErrEmptyWords,
		},
		{
			name: "nested directory",
			fsys: fstest.MapFS{"censored/old/en.txt": {Data: []byte("snake")}},
			err:  errors.ErrOnlyCensoredFiles,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWordLists(tt.fsys, "censored")
			require.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadWordLists(fstest.MapFS{}, "censored")
		require.Error(t, err)
	})
}
