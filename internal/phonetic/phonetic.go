// Package phonetic suggests dictionary words that sound like a word the
// pronouncing dictionary does not know, so a scansion report can offer
// "did you mean" hints for misspellings and archaic forms.
//
// Suggestions come from two passes:
//
//  1. Phonetic candidates: words sharing a Double Metaphone code with the
//     query, kept when their Jaro-Winkler similarity reaches the phonetic
//     threshold (default 0.70).
//  2. Fuzzy fallback: when no phonetic candidate qualifies, words starting
//     with the same letter are ranked by Jaro-Winkler alone against the
//     stricter fuzzy threshold (default 0.85).
package phonetic

import (
	"cmp"
	"iter"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Suggester].
type Option func(*Suggester)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a candidate
// that shares a phonetic code with the query.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Suggester) {
		s.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the fallback
// pass that ignores phonetic codes.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Suggester) {
		s.fuzzyThreshold = threshold
	}
}

// Suggestion is a candidate replacement with its similarity score.
type Suggestion struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
	Phonetic   bool    `json:"phonetic"`
}

// Suggester is read-only after [New] and safe for concurrent use.
type Suggester struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	byCode    map[string][]string
	byInitial map[byte][]string
}

// New indexes words by Double Metaphone code and initial letter.
func New(words iter.Seq[string], opts ...Option) *Suggester {
	s := &Suggester{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		byCode:            make(map[string][]string),
		byInitial:         make(map[byte][]string),
	}
	for _, o := range opts {
		o(s)
	}
	for w := range words {
		w = strings.ToLower(w)
		if w == "" {
			continue
		}
		for code := range codes(w) {
			s.byCode[code] = append(s.byCode[code], w)
		}
		s.byInitial[w[0]] = append(s.byInitial[w[0]], w)
	}
	return s
}

// Suggest returns up to limit suggestions for word, best first. Ties are
// broken alphabetically so results are stable.
func (s *Suggester) Suggest(word string, limit int) []Suggestion {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" || limit <= 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var out []Suggestion
	for code := range codes(word) {
		for _, cand := range s.byCode[code] {
			if cand == word {
				continue
			}
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			if score := matchr.JaroWinkler(word, cand, false); score >= s.phoneticThreshold {
				out = append(out, Suggestion{Word: cand, Confidence: score, Phonetic: true})
			}
		}
	}

	if len(out) == 0 {
		for _, cand := range s.byInitial[word[0]] {
			if cand == word {
				continue
			}
			if score := matchr.JaroWinkler(word, cand, false); score >= s.fuzzyThreshold {
				out = append(out, Suggestion{Word: cand, Confidence: score})
			}
		}
	}

	slices.SortFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return strings.Compare(a.Word, b.Word)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// codes returns the non-empty Double Metaphone codes of w.
func codes(w string) map[string]struct{} {
	set := make(map[string]struct{}, 2)
	p, alt := matchr.DoubleMetaphone(w)
	if p != "" {
		set[p] = struct{}{}
	}
	if alt != "" {
		set[alt] = struct{}{}
	}
	return set
}
