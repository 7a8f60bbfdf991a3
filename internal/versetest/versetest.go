// Package versetest provides a small pronouncing dictionary for tests.
package versetest

import (
	"strings"
	"testing"

	"github.com/bedwards/sonnet/pkg/cmudict"
)

// Corpus is a CMU-format excerpt covering the opening of Sonnet 18 and a few
// rhyme families.
const Corpus = `;;; versetest corpus
A  AH0
A(1)  EY1
AND  AH0 N D
ART  AA1 R T
AWAY  AH0 W EY1
BEAR  B EH1 R
BETWEEN  B IH0 T W IY1 N
BURDEN  B ER1 D AH0 N
COLOR  K AH1 L ER0
COMPARE  K AH0 M P EH1 R
DAY  D EY1
DELIGHT  D IH0 L AY1 T
DESPAIR  D IH0 S P EH1 R
FAIR  F EH1 R
GREEN  G R IY1 N
I  AY1
LIGHT  L AY1 T
LOVELY  L AH1 V L IY0
MAY  M EY1
MORE  M AO1 R
NIGHT  N AY1 T
SEEN  S IY1 N
SERENE  S ER0 IY1 N
SHALL  SH AE1 L
SUMMER'S  S AH1 M ER0 Z
TEMPERATE  T EH1 M P ER0 AH0 T
THE  DH AH0
THEE  DH IY1
THEIR  DH EH1 R
THERE  DH EH1 R
THOU  DH AW1
TO  T UW1
WANDERED  W AA1 N D ER0 D
WHETHER  W EH1 DH ER0
`

// Dictionary loads [Corpus].
func Dictionary(tb testing.TB) *cmudict.Dictionary {
	tb.Helper()
	return Load(tb, Corpus)
}

// Load builds a dictionary from a CMU-format string.
func Load(tb testing.TB, corpus string) *cmudict.Dictionary {
	tb.Helper()
	d, err := cmudict.Load(strings.NewReader(corpus))
	if err != nil {
		tb.Fatalf("versetest: load corpus: %v", err)
	}
	return d
}
