// Package cmudict parses the CMU Pronouncing Dictionary and indexes it for
// pronunciation, stress-bucket and rhyme queries.
//
// A [Dictionary] is built once by [Load] or [LoadFile] and never mutated
// afterwards, so it may be shared by any number of goroutines without locking.
package cmudict

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedEntry is returned by [ParseLine] when a line has no headword /
// pronunciation separator, an empty pronunciation, or no vowel phoneme.
var ErrMalformedEntry = errors.New("cmudict: malformed entry")

// errComment marks a line that carries no entry (a ";;;" comment or a blank
// line). It never escapes the package.
var errComment = errors.New("cmudict: comment line")

// commentPrefix starts every comment line in the CMU source file.
const commentPrefix = ";;;"

// Stress is the lexical stress digit attached to a vowel phoneme.
type Stress int8

const (
	// NoStress marks a consonant, or an unknown syllable in scansion output.
	NoStress Stress = -1
	// Unstressed is stress digit 0.
	Unstressed Stress = 0
	// Primary is stress digit 1.
	Primary Stress = 1
	// Secondary is stress digit 2.
	Secondary Stress = 2
)

// Digit returns the marker character for s, or '?' for [NoStress].
func (s Stress) Digit() byte {
	switch s {
	case Unstressed, Primary, Secondary:
		return byte('0' + s)
	default:
		return '?'
	}
}

// Stressed reports whether s is primary or secondary stress.
func (s Stress) Stressed() bool { return s == Primary || s == Secondary }

// Token is a single phoneme of a pronunciation.
type Token struct {
	// Symbol is the ARPAbet symbol without its stress digit, e.g. "EH".
	Symbol string
	// Stress is the vowel stress, or NoStress for consonants.
	Stress Stress
}

// IsVowel reports whether the token carried a stress digit in the source.
func (t Token) IsVowel() bool { return t.Stress != NoStress }

// String renders the token the way the dictionary spells it ("EH1", "R").
func (t Token) String() string {
	if !t.IsVowel() {
		return t.Symbol
	}
	return t.Symbol + string(t.Stress.Digit())
}

// Entry is one parsed dictionary line.
type Entry struct {
	// Word is the lowercased headword with any "(N)" variant suffix removed.
	Word string
	// Variant is the alternate-pronunciation index from the headword, or 0
	// for the primary pronunciation.
	Variant int
	// Phonemes is the pronunciation in spoken order. Never empty.
	Phonemes []Token
}

// StressMarkers concatenates the stress digits of every vowel in order.
func (e Entry) StressMarkers() string {
	var b strings.Builder
	for _, t := range e.Phonemes {
		if t.IsVowel() {
			b.WriteByte(t.Stress.Digit())
		}
	}
	return b.String()
}

// Syllables returns the number of vowel phonemes.
func (e Entry) Syllables() int {
	n := 0
	for _, t := range e.Phonemes {
		if t.IsVowel() {
			n++
		}
	}
	return n
}

// Pronunciation renders the phonemes space separated, as in the source file.
func (e Entry) Pronunciation() string {
	parts := make([]string, len(e.Phonemes))
	for i, t := range e.Phonemes {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// Key is a rhyme key: the phonetic tail of a word from its last stressed
// vowel to the end, rendered as space-separated tokens. Keys compare with ==.
type Key string

// RhymeKey derives the rhyme key of e. The second result is false when the
// word is not eligible for rhyme matching: its final stress digit must be 1,
// or its last two digits must be "02".
//
// The key vowel is written with primary stress so that a tail ending in a
// secondary-stressed vowel matches the same tail under primary stress.
func (e Entry) RhymeKey() (Key, bool) {
	markers := e.StressMarkers()
	if !strings.HasSuffix(markers, "1") && !strings.HasSuffix(markers, "02") {
		return "", false
	}

	start := -1
	for i := len(e.Phonemes) - 1; i >= 0; i-- {
		if e.Phonemes[i].Stress.Stressed() {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	parts := make([]string, 0, len(e.Phonemes)-start)
	for i, t := range e.Phonemes[start:] {
		if i == 0 {
			t.Stress = Primary
		}
		parts = append(parts, t.String())
	}
	return Key(strings.Join(parts, " ")), true
}

// ParseLine parses one dictionary line. Comment and blank lines yield an
// internal sentinel that [Load] skips; unparseable lines yield an error
// wrapping [ErrMalformedEntry].
func ParseLine(line string) (Entry, error) {
	line = strings.TrimRight(line, " \t\r\n")
	if line == "" || strings.HasPrefix(line, commentPrefix) {
		return Entry{}, errComment
	}

	sep := strings.Index(line, "  ")
	if sep <= 0 {
		return Entry{}, fmt.Errorf("%w: no separator in %q", ErrMalformedEntry, line)
	}
	head := line[:sep]
	fields := strings.Fields(line[sep:])
	if len(fields) == 0 {
		return Entry{}, fmt.Errorf("%w: empty pronunciation for %q", ErrMalformedEntry, head)
	}

	word, variant := parseHeadword(head)
	if word == "" {
		return Entry{}, fmt.Errorf("%w: empty headword in %q", ErrMalformedEntry, line)
	}

	e := Entry{
		Word:     word,
		Variant:  variant,
		Phonemes: make([]Token, 0, len(fields)),
	}
	vowels := 0
	for _, f := range fields {
		t := parseToken(f)
		if t.Symbol == "" {
			return Entry{}, fmt.Errorf("%w: bad phoneme %q in %q", ErrMalformedEntry, f, head)
		}
		if t.IsVowel() {
			vowels++
		}
		e.Phonemes = append(e.Phonemes, t)
	}
	if vowels == 0 {
		return Entry{}, fmt.Errorf("%w: no vowel in %q", ErrMalformedEntry, head)
	}
	return e, nil
}

// parseHeadword lowercases a headword and splits off a trailing "(N)" variant
// marker, e.g. "HOUSE(2)" -> ("house", 2).
func parseHeadword(head string) (string, int) {
	word := strings.ToLower(head)
	open := strings.LastIndexByte(word, '(')
	if open <= 0 || !strings.HasSuffix(word, ")") {
		return word, 0
	}
	n, err := strconv.Atoi(word[open+1 : len(word)-1])
	if err != nil {
		return word, 0
	}
	return word[:open], n
}

func parseToken(sym string) Token {
	sym = strings.ToUpper(sym)
	last := sym[len(sym)-1]
	if last >= '0' && last <= '2' {
		return Token{Symbol: sym[:len(sym)-1], Stress: Stress(last - '0')}
	}
	return Token{Symbol: sym, Stress: NoStress}
}
