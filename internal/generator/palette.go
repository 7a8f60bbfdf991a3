package generator

import (
	"slices"
)

// FunctionWords are short words that take no stress in running verse.
var FunctionWords = []string{
	"a", "an", "and", "are", "be", "been", "can", "did", "does", "er",
	"for", "good", "has", "hers", "him", "his", "hm", "hmm", "i'm", "if",
	"in", "is", "it", "it's", "its", "just", "of", "or", "than", "that",
	"the", "them", "this", "to", "was", "who've", "will", "with", "yours",
}

// groupRhymes caps the strict rhymes kept with each palette seed.
const groupRhymes = 7

// Palette is a bank of words for drafting strict iambic verse.
type Palette struct {
	// Groups are rhyme families, each an iamb seed followed by strict rhymes.
	Groups [][]string `json:"groups"`
	// Iambs, Trochees and Amphibrachs are sampled by stress pattern
	// (01, 10 and 010).
	Iambs       []string `json:"iambs"`
	Trochees    []string `json:"trochees"`
	Amphibrachs []string `json:"amphibrachs"`
	// FunctionWords lists unstressable filler words.
	FunctionWords []string `json:"function_words"`
}

// patternWords returns the bucket words whose stress string equals pattern.
func (g *Generator) patternWords(pattern string) []string {
	var out []string
	for _, w := range g.src.Candidates(len(pattern), pattern[0] == '0', "") {
		if m, ok := g.src.StressMarkers(w); ok && m == pattern {
			out = append(out, w)
		}
	}
	return out
}

func (g *Generator) sample(words []string, n int) []string {
	if len(words) == 0 || n <= 0 {
		return []string{}
	}
	out := make([]string, 0, n)
	for range n {
		out = append(out, g.pick(words))
	}
	return out
}

// Palette builds groups rhyme families of strict iambs and perPattern
// sampled words for each stress pattern. Lists are empty, never nil. It returns [ErrGenerationExhausted]
// when a rhyme family cannot be found within the attempt budget.
func (g *Generator) Palette(groups, perPattern int) (Palette, error) {
	iambs := g.patternWords("01")
	p := Palette{
		Groups:        [][]string{},
		Iambs:         g.sample(iambs, perPattern),
		Trochees:      g.sample(g.patternWords("10"), perPattern),
		Amphibrachs:   g.sample(g.patternWords("010"), perPattern),
		FunctionWords: slices.Clone(FunctionWords),
	}
	if groups <= 0 {
		return p, nil
	}
	if len(iambs) == 0 {
		return Palette{}, ErrEmptyBucket
	}

	limit := g.MaxAttempts()
	for range groups {
		found := false
		for range limit {
			seed := g.pick(iambs)
			rhymes := slices.Collect(g.matcher.StrictRhymes(seed))
			if len(rhymes) == 0 {
				continue
			}
			g.shuffle(rhymes)
			if len(rhymes) > groupRhymes {
				rhymes = rhymes[:groupRhymes]
			}
			p.Groups = append(p.Groups, append([]string{seed}, rhymes...))
			found = true
			break
		}
		if !found {
			return Palette{}, ErrGenerationExhausted
		}
	}
	return p, nil
}

func (g *Generator) shuffle(words []string) {
	for i := len(words) - 1; i > 0; i-- {
		j := g.intN(i + 1)
		words[i], words[j] = words[j], words[i]
	}
}
