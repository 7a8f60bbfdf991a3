package generator

import (
	"strings"
)

// completionSyllables is the order in which completion lengths are offered.
var completionSyllables = []int{5, 4, 3, 2, 1}

// Complete suggests words beginning with prefix, one per syllable count from
// five down to one, skipping counts with no match.
//
// When the previous word on the line ends unstressed, suggestions start
// stressed so the alternation continues; otherwise they start unstressed.
func (g *Generator) Complete(prefix, prev string) []string {
	unstressed := true
	if markers, ok := g.src.StressMarkers(lastPart(prev)); ok && strings.HasSuffix(markers, "0") {
		unstressed = false
	}

	var out []string
	for _, n := range completionSyllables {
		cands := g.src.Candidates(n, unstressed, prefix)
		if len(cands) == 0 {
			continue
		}
		out = append(out, g.pick(cands))
	}
	return out
}

// lastPart reduces a raw previous token ("summer's-day,") to the word the
// stress is read from.
func lastPart(word string) string {
	word = strings.Trim(strings.ToLower(word), ",;:.?!")
	if i := strings.LastIndexByte(word, '-'); i >= 0 {
		word = word[i+1:]
	}
	return word
}
