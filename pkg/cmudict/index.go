package cmudict

import (
	"iter"
	"strings"
)

// maxBucketSyllables bounds the stress strings admitted to the buckets.
const maxBucketSyllables = 10

// anomalousPairs are adjacent stress digits that mark encoding quirks in the
// source rather than usable stress patterns.
var anomalousPairs = []string{"00", "11", "22", "12", "21"}

type bucketKey struct {
	syllables  int
	unstressed bool
}

// Bucketable reports whether e may be indexed in a stress bucket.
func Bucketable(e Entry) bool {
	if strings.ContainsAny(e.Word, "-(") || e.Variant != 0 {
		return false
	}
	markers := e.StressMarkers()
	if markers == "" || len(markers) > maxBucketSyllables {
		return false
	}
	for _, p := range anomalousPairs {
		if strings.Contains(markers, p) {
			return false
		}
	}
	return true
}

func (d *Dictionary) addToBuckets(e Entry) bool {
	if !Bucketable(e) {
		return false
	}
	markers := e.StressMarkers()
	k := bucketKey{syllables: len(markers), unstressed: markers[0] == '0'}
	prefixes, ok := d.buckets[k]
	if !ok {
		prefixes = make(map[string][]string)
		d.buckets[k] = prefixes
	}
	prefixes[""] = append(prefixes[""], e.Word)
	for i := 1; i <= len(e.Word); i++ {
		p := e.Word[:i]
		prefixes[p] = append(prefixes[p], e.Word)
	}
	return true
}

// Candidates returns the bucketed words with the given syllable count and
// stress start whose spelling begins with prefix. An empty prefix returns the
// whole bucket. The returned slice is shared and must not be modified.
func (d *Dictionary) Candidates(syllables int, unstressed bool, prefix string) []string {
	prefixes, ok := d.buckets[bucketKey{syllables: syllables, unstressed: unstressed}]
	if !ok {
		return nil
	}
	return prefixes[strings.ToLower(prefix)]
}

// BucketSize returns the number of words in a bucket.
func (d *Dictionary) BucketSize(syllables int, unstressed bool) int {
	return len(d.Candidates(syllables, unstressed, ""))
}

// RhymeGroup returns every word whose rhyme key is key, in source order.
// The returned slice is shared and must not be modified.
func (d *Dictionary) RhymeGroup(key Key) []string {
	return d.rhymes[key]
}

// RhymeKey resolves word and returns its rhyme key.
func (d *Dictionary) RhymeKey(word string) (Key, bool) {
	e, ok := d.Lookup(word)
	if !ok {
		return "", false
	}
	return e.RhymeKey()
}

// RhymingWords yields every word sharing word's rhyme key, excluding word
// itself, in source order. Words without a rhyme key yield nothing.
func (d *Dictionary) RhymingWords(word string) iter.Seq[string] {
	return func(yield func(string) bool) {
		key, ok := d.RhymeKey(word)
		if !ok {
			return
		}
		self := normalize(word)
		for _, w := range d.rhymes[key] {
			if w == self {
				continue
			}
			if !yield(w) {
				return
			}
		}
	}
}
