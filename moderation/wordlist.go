// Package moderation masks censored words in chat payloads.
package moderation

import (
	"fmt"
	"io/fs"
	"path"
	"secure-chat/errors"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// WordLists maps a language code to its censored words. Each language comes
// from one "<lang>.txt" file, one word per line, '#' starting a comment line.
type WordLists map[string][]string

// LoadWordLists reads every .txt file of dir. Other files are skipped, a
// nested directory is refused.
func LoadWordLists(fsys fs.FS, dir string) (WordLists, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading censored directory %q: %w", dir, err)
	}

	lists := make(WordLists)
	for _, entry := range entries {
		if entry.IsDir() {
			return nil, fmt.Errorf("%w: %s", errors.ErrOnlyCensoredFiles, entry.Name())
		}
		if path.Ext(entry.Name()) != ".txt" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if words := parseWords(string(data)); len(words) > 0 {
			lists[strings.TrimSuffix(entry.Name(), ".txt")] = words
		}
	}

	if len(lists) == 0 {
		return nil, errors.ErrEmptyWords
	}
	return lists, nil
}

func parseWords(data string) []string {
	var words []string
	for line := range strings.Lines(data) {
		word := strings.TrimSpace(line)
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words = append(words, word)
	}
	return words
}

// Languages are sorted.
func (w WordLists) Languages() []string {
	languages := lo.Keys(w)
	slices.Sort(languages)
	return languages
}

// Words merges every language into one sorted list without duplicates.
func (w WordLists) Words() []string {
	words := lo.Uniq(lo.Flatten(lo.Values(w)))
	slices.Sort(words)
	return words
}
