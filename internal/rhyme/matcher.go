// Package rhyme decides whether words rhyme and enumerates rhymes, using the
// rhyme keys of a pronouncing dictionary.
package rhyme

import (
	"iter"
	"strings"
	"sync"

	"github.com/bedwards/sonnet/pkg/cmudict"
)

// SonnetPairs lists the line pairs that must rhyme in a Shakespearean sonnet
// (ABAB CDCD EFEF GG), as 0-based line indices.
var SonnetPairs = [7][2]int{
	{0, 2}, {1, 3},
	{4, 6}, {5, 7},
	{8, 10}, {9, 11},
	{12, 13},
}

// strictPattern is the stress string of a strict rhyme: a two-syllable iamb.
const strictPattern = "01"

// Index is the part of a pronouncing dictionary the matcher needs.
// [*cmudict.Dictionary] satisfies it.
type Index interface {
	Lookup(word string) (cmudict.Entry, bool)
	RhymeGroup(key cmudict.Key) []string
}

var _ Index = (*cmudict.Dictionary)(nil)

type keyResult struct {
	key cmudict.Key
	ok  bool
}

// Matcher answers rhyme queries. Keys are memoized per dictionary headword,
// so the cache never outgrows the dictionary; a Matcher is safe for
// concurrent use.
type Matcher struct {
	idx   Index
	cache sync.Map // headword -> keyResult
}

// NewMatcher creates a Matcher over idx.
func NewMatcher(idx Index) *Matcher {
	return &Matcher{idx: idx}
}

// Key returns the rhyme key of word. The second result is false when the
// word is unknown or not eligible for rhyming.
func (m *Matcher) Key(word string) (cmudict.Key, bool) {
	e, ok := m.idx.Lookup(normalize(word))
	if !ok {
		return "", false
	}
	if v, ok := m.cache.Load(e.Word); ok {
		r := v.(keyResult)
		return r.key, r.ok
	}
	var r keyResult
	r.key, r.ok = e.RhymeKey()
	m.cache.Store(e.Word, r)
	return r.key, r.ok
}

// Rhymes reports whether a and b rhyme. A word never rhymes with itself, and
// a word without a rhyme key rhymes with nothing.
func (m *Matcher) Rhymes(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == b {
		return false
	}
	ka, ok := m.Key(a)
	if !ok {
		return false
	}
	kb, ok := m.Key(b)
	return ok && ka == kb
}

// RhymingWords yields the dictionary words rhyming with word, in dictionary
// order, excluding word itself.
func (m *Matcher) RhymingWords(word string) iter.Seq[string] {
	return func(yield func(string) bool) {
		key, ok := m.Key(word)
		if !ok {
			return
		}
		self := normalize(word)
		for _, w := range m.idx.RhymeGroup(key) {
			if w == self {
				continue
			}
			if !yield(w) {
				return
			}
		}
	}
}

// StrictRhymes yields the rhyming words whose own stress pattern is a
// two-syllable iamb.
func (m *Matcher) StrictRhymes(word string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for w := range m.RhymingWords(word) {
			e, ok := m.idx.Lookup(w)
			if !ok || e.StressMarkers() != strictPattern {
				continue
			}
			if !yield(w) {
				return
			}
		}
	}
}

// Mismatch is a rhyme pair whose end words do not rhyme.
type Mismatch struct {
	First      int    `json:"first"`
	Second     int    `json:"second"`
	FirstWord  string `json:"first_word"`
	SecondWord string `json:"second_word"`
}

// CheckScheme compares the end words of a block of lines against
// [SonnetPairs]. Pairs that reach past len(endWords) or touch an empty
// line are skipped, so a partial sonnet is checked as far as it goes.
func (m *Matcher) CheckScheme(endWords []string) []Mismatch {
	var out []Mismatch
	for _, p := range SonnetPairs {
		if p[1] >= len(endWords) {
			continue
		}
		a, b := endWords[p[0]], endWords[p[1]]
		if a == "" || b == "" {
			continue
		}
		if !m.Rhymes(a, b) {
			out = append(out, Mismatch{First: p[0], Second: p[1], FirstWord: a, SecondWord: b})
		}
	}
	return out
}

func normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
