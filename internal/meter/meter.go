// Package meter scans lines of verse against iambic pentameter.
//
// [Meter] gives the strict yes/no classification from a line's stress
// strings. [Score] gives partial credit per syllable, which is what an
// editor shows next to each line.
package meter

import (
	"fmt"
	"strings"

	"github.com/bedwards/sonnet/pkg/cmudict"
)

// Feet is the number of iambs in a pentameter line.
const Feet = 5

// Slot is the stress a metrical position expects.
type Slot int

const (
	// Offbeat positions (even, 0-based) expect an unstressed syllable.
	Offbeat Slot = iota
	// Beat positions (odd) expect primary or secondary stress.
	Beat
)

// SlotAt returns the expected slot of the 0-based syllable position i.
func SlotAt(i int) Slot {
	if i%2 == 0 {
		return Offbeat
	}
	return Beat
}

// Mark classifies one syllable of a scanned line.
type Mark struct {
	// Position is the 0-based syllable index within the line.
	Position int `json:"position"`
	// Word is the index of the word the syllable belongs to.
	Word int `json:"word"`
	// Expected is the slot the position calls for.
	Expected Slot `json:"expected"`
	// Stress is the dictionary stress, or NoStress for an unknown word.
	Stress cmudict.Stress `json:"stress"`
	// Match reports whether the syllable satisfies Expected.
	Match bool `json:"match"`
}

// Known reports whether the syllable came from a dictionary word.
func (m Mark) Known() bool { return m.Stress != cmudict.NoStress }

// Glyph renders the mark: the expected glyph when it matches, the opposite
// glyph when it does not, and "?" for unknown words.
func (m Mark) Glyph() string {
	if !m.Known() {
		return "?"
	}
	stressed := m.Expected == Beat
	if !m.Match {
		stressed = !stressed
	}
	if stressed {
		return "¯"
	}
	return "˘"
}

// Result is the outcome of [Meter].
type Result struct {
	// IsIambicPentameter is true iff the adjusted digits are exactly five
	// repetitions of 0 followed by 1 or 2.
	IsIambicPentameter bool `json:"is_iambic_pentameter"`
	// SyllableCount counts every position, unknown words included.
	SyllableCount int `json:"syllable_count"`
	// Score is the per-syllable partial credit, see [Score].
	Score int `json:"score"`
	// Digits is the concatenated stress sequence after monosyllable
	// demotion.
	Digits string `json:"digits"`
	// Marks holds one classification per syllable position.
	Marks []Mark `json:"marks"`
}

// Meter classifies a line from the stress strings of its words, in order.
//
// A monosyllable carrying primary stress is read as unstressed when it lands
// on an even position, i.e. when the syllables before it number an even
// count. A word with no pronunciation ([cmudict.UnknownMarkers]) occupies one
// position and can never satisfy the pentameter check; so does any string
// that is not a run of 0, 1 and 2.
func Meter(words []string) Result {
	var digits strings.Builder
	syllables := make([]cmudict.Syllable, 0, len(words)*2)
	for _, w := range words {
		if !cmudict.ValidMarkers(w) {
			w = cmudict.UnknownMarkers
		}
		if w == "1" && digits.Len()%2 == 0 {
			digits.WriteByte('0')
		} else {
			digits.WriteString(w)
		}
		syllables = append(syllables, cmudict.SyllablesOf(w)...)
	}

	seq := digits.String()
	sc := Score(syllables)
	return Result{
		IsIambicPentameter: isPentameter(seq),
		SyllableCount:      len(seq),
		Score:              sc.Score,
		Digits:             seq,
		Marks:              sc.Marks,
	}
}

func isPentameter(seq string) bool {
	if len(seq) != 2*Feet {
		return false
	}
	for i := 0; i < len(seq); i++ {
		c := seq[i]
		if SlotAt(i) == Offbeat && c != '0' {
			return false
		}
		if SlotAt(i) == Beat && c != '1' && c != '2' {
			return false
		}
	}
	return true
}

// Scansion is the per-syllable scoring of a line.
type Scansion struct {
	// Score counts syllables that satisfy their slot.
	Score int `json:"score"`
	// Total counts syllables with a known stress.
	Total int `json:"total"`
	// Marks holds one entry per syllable position.
	Marks []Mark `json:"marks"`
}

// Clean reports whether the line scored ten out of ten.
func (s Scansion) Clean() bool {
	return s.Score == 2*Feet && s.Total == 2*Feet
}

// Summary renders the "(score/total)" tally.
func (s Scansion) Summary() string {
	return fmt.Sprintf("(%2d/%2d)", s.Score, s.Total)
}

// Render renders one glyph per syllable followed by the summary.
func (s Scansion) Render() string {
	glyphs := make([]string, len(s.Marks))
	for i, m := range s.Marks {
		glyphs[i] = m.Glyph()
	}
	return strings.Join(glyphs, " ") + "    " + s.Summary()
}

// Score walks a line's syllables in order and awards a point for each one
// that satisfies the slot of its position. Offbeats accept stress 0, beats
// accept 1 or 2, and a monosyllable satisfies whichever slot it lands in.
// Unknown syllables keep their position but earn nothing and are left out
// of the total.
func Score(syllables []cmudict.Syllable) Scansion {
	sc := Scansion{Marks: make([]Mark, len(syllables))}
	word, inWord := 0, 0
	for i, syl := range syllables {
		m := Mark{Position: i, Word: word, Expected: SlotAt(i), Stress: syl.Stress}
		if syl.Known() {
			sc.Total++
			switch {
			case syl.WordSyllables == 1:
				m.Match = true
			case m.Expected == Offbeat:
				m.Match = syl.Stress == cmudict.Unstressed
			default:
				m.Match = syl.Stress.Stressed()
			}
			if m.Match {
				sc.Score++
			}
		}
		sc.Marks[i] = m

		inWord++
		if !syl.Known() || inWord >= syl.WordSyllables {
			word++
			inWord = 0
		}
	}
	return sc
}
