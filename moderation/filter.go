package moderation

import (
	"log/slog"
	"secure-chat/errors"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// lookalikes folds digits and symbols used to dodge the filter back to letters.
var lookalikes = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

// Result is a payload after filtering. Hits lists each censored word once,
// in order of first appearance.
type Result struct {
	Text string
	Hits []string
}

func (r Result) Censored() bool { return len(r.Hits) > 0 }

// Filter masks censored words, ignoring case, separators and lookalike
// characters. It is safe for concurrent use.
type Filter struct {
	machine *goahocorasick.Machine
	mask    rune
}

func NewFilter(words []string, mask rune, log *slog.Logger) (*Filter, error) {
	var patterns [][]rune
	for _, word := range words {
		if folded, _ := fold(word); len(folded) > 0 {
			patterns = append(patterns, folded)
		}
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	log.Debug("Censor automaton built", "patterns", len(patterns))
	return &Filter{machine: machine, mask: mask}, nil
}

// Apply masks every rune of payload that belongs to a censored word. Separators
// between the letters of a match are masked too, the rest is left untouched.
func (f *Filter) Apply(payload string) Result {
	folded, positions := fold(payload)
	if len(folded) == 0 {
		return Result{Text: payload}
	}
	terms := f.machine.MultiPatternSearch(folded, false)
	if len(terms) == 0 {
		return Result{Text: payload}
	}

	runes := []rune(payload)
	seen := make(map[string]struct{}, len(terms))
	var hits []string
	for _, term := range terms {
		last := term.Pos + len(term.Word) - 1
		if term.Pos < 0 || last >= len(positions) {
			continue
		}
		for i := positions[term.Pos]; i <= positions[last]; i++ {
			runes[i] = f.mask
		}
		word := string(term.Word)
		if _, ok := seen[word]; !ok {
			seen[word] = struct{}{}
			hits = append(hits, word)
		}
	}
	return Result{Text: string(runes), Hits: hits}
}

// fold lowercases s, maps lookalikes and drops separators. positions[i] is the
// index in []rune(s) of folded[i].
func fold(s string) (folded []rune, positions []int) {
	for i, r := range []rune(s) {
		if mapped, ok := lookalikes[r]; ok {
			r = mapped
		}
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		folded = append(folded, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return folded, positions
}
