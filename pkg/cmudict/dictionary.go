package cmudict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"os"
	"strings"
)

// ErrEmptyDictionary is returned by [Load] when the source yields no entries.
var ErrEmptyDictionary = errors.New("cmudict: no entries loaded")

// UnknownMarkers is the stress string reported for words with no
// pronunciation after every fallback.
const UnknownMarkers = "?"

// defaultAliases maps archaic spellings to their modern headwords.
var defaultAliases = map[string]string{
	"burthen": "burden",
	"wh'r":    "whether",
}

// Fallback identifies which lookup rule resolved a word.
type Fallback int

const (
	// FallbackNone means the word matched a headword directly.
	FallbackNone Fallback = iota
	// FallbackAlias means an archaic-spelling alias matched.
	FallbackAlias
	// FallbackElision means a trailing "'d" was read as "ed".
	FallbackElision
	// FallbackVowel means "ou" was read as "o".
	FallbackVowel
)

// String returns the rule name used in logs and API responses.
func (f Fallback) String() string {
	switch f {
	case FallbackNone:
		return "exact"
	case FallbackAlias:
		return "alias"
	case FallbackElision:
		return "elision"
	case FallbackVowel:
		return "ou-vowel"
	default:
		return "unknown"
	}
}

// Stats describes a dictionary load.
type Stats struct {
	TotalLines     int
	CommentLines   int
	MalformedLines int
	VariantLines   int
	DuplicateLines int
	Entries        int
	Bucketed       int
	RhymeKeys      int
}

// LogValue implements [slog.LogValuer].
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("lines", s.TotalLines),
		slog.Int("comments", s.CommentLines),
		slog.Int("malformed", s.MalformedLines),
		slog.Int("variants", s.VariantLines),
		slog.Int("duplicates", s.DuplicateLines),
		slog.Int("entries", s.Entries),
		slog.Int("bucketed", s.Bucketed),
		slog.Int("rhyme_keys", s.RhymeKeys),
	)
}

// Syllable is one syllable of a looked-up word, as consumed by scansion.
type Syllable struct {
	// Stress is the syllable's stress, or NoStress when the word is unknown.
	Stress Stress
	// WordSyllables is the syllable count of the word this syllable belongs
	// to, or 0 when the word is unknown.
	WordSyllables int
}

// Known reports whether the syllable came from a dictionary entry.
func (s Syllable) Known() bool { return s.Stress != NoStress }

// Option configures [Load].
type Option func(*Dictionary)

// WithAliases adds archaic-spelling aliases on top of the built-in set.
// Keys and values are lowercased.
func WithAliases(aliases map[string]string) Option {
	return func(d *Dictionary) {
		for k, v := range aliases {
			d.aliases[strings.ToLower(k)] = strings.ToLower(v)
		}
	}
}

// Dictionary is the read-only pronunciation index.
type Dictionary struct {
	entries map[string]Entry
	order   []string
	aliases map[string]string
	buckets map[bucketKey]map[string][]string
	rhymes  map[Key][]string
	stats   Stats
}

// LoadFile opens path and loads it with [Load].
func LoadFile(path string, opts ...Option) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cmudict: open %q: %w", path, err)
	}
	defer f.Close()

	d, err := Load(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("cmudict: load %q: %w", path, err)
	}
	return d, nil
}

// Load reads a CMU-format dictionary from r and builds every index.
//
// Malformed lines are counted and skipped. Variant pronunciations ("WORD(2)")
// are skipped so that each word keeps exactly its primary pronunciation, and
// on duplicate headwords the first occurrence wins.
func Load(r io.Reader, opts ...Option) (*Dictionary, error) {
	d := &Dictionary{
		entries: make(map[string]Entry),
		aliases: maps.Clone(defaultAliases),
		buckets: make(map[bucketKey]map[string][]string),
		rhymes:  make(map[Key][]string),
	}
	for _, opt := range opts {
		opt(d)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		d.stats.TotalLines++
		e, err := ParseLine(sc.Text())
		switch {
		case errors.Is(err, errComment):
			d.stats.CommentLines++
			continue
		case err != nil:
			d.stats.MalformedLines++
			slog.Debug("cmudict: skipping line", "line", d.stats.TotalLines, "err", err)
			continue
		}
		if e.Variant != 0 {
			d.stats.VariantLines++
			continue
		}
		if _, dup := d.entries[e.Word]; dup {
			d.stats.DuplicateLines++
			continue
		}
		d.add(e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cmudict: read: %w", err)
	}
	if len(d.entries) == 0 {
		return nil, ErrEmptyDictionary
	}

	d.stats.Entries = len(d.entries)
	d.stats.RhymeKeys = len(d.rhymes)
	return d, nil
}

func (d *Dictionary) add(e Entry) {
	d.entries[e.Word] = e
	d.order = append(d.order, e.Word)

	if key, ok := e.RhymeKey(); ok {
		d.rhymes[key] = append(d.rhymes[key], e.Word)
	}
	if d.addToBuckets(e) {
		d.stats.Bucketed++
	}
}

// Stats returns the load statistics.
func (d *Dictionary) Stats() Stats { return d.stats }

// Len returns the number of indexed words.
func (d *Dictionary) Len() int { return len(d.entries) }

// Words yields every indexed word in source order.
func (d *Dictionary) Words() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, w := range d.order {
			if !yield(w) {
				return
			}
		}
	}
}

// Lookup returns the pronunciation of word, applying the fallback rules.
func (d *Dictionary) Lookup(word string) (Entry, bool) {
	e, _, ok := d.Resolve(word)
	return e, ok
}

// Resolve is [Dictionary.Lookup] that also reports which rule matched.
// Fallbacks are tried in order and never chain into one another: an alias,
// then a trailing "'d" read as "ed", then "ou" read as "o".
func (d *Dictionary) Resolve(word string) (Entry, Fallback, bool) {
	w := normalize(word)
	if w == "" {
		return Entry{}, FallbackNone, false
	}
	if e, ok := d.entries[w]; ok {
		return e, FallbackNone, true
	}
	if alias, ok := d.aliases[w]; ok {
		if e, ok := d.entries[alias]; ok {
			return e, FallbackAlias, true
		}
	}
	if stem, ok := strings.CutSuffix(w, "'d"); ok {
		if e, ok := d.entries[stem+"ed"]; ok {
			return e, FallbackElision, true
		}
	}
	if strings.Contains(w, "ou") {
		if e, ok := d.entries[strings.ReplaceAll(w, "ou", "o")]; ok {
			return e, FallbackVowel, true
		}
	}
	return Entry{}, FallbackNone, false
}

// StressMarkers returns the stress string of word, if it resolves.
func (d *Dictionary) StressMarkers(word string) (string, bool) {
	e, ok := d.Lookup(word)
	if !ok {
		return "", false
	}
	return e.StressMarkers(), true
}

// Stresses returns the stress string and per-syllable stresses of word.
// Unknown words yield [UnknownMarkers] and a single unknown syllable so that
// scansion can keep the word's position.
func (d *Dictionary) Stresses(word string) (string, []Syllable) {
	e, ok := d.Lookup(word)
	if !ok {
		return UnknownMarkers, SyllablesOf(UnknownMarkers)
	}
	markers := e.StressMarkers()
	return markers, SyllablesOf(markers)
}

// ValidMarkers reports whether markers is a non-empty run of the digits 0, 1
// and 2.
func ValidMarkers(markers string) bool {
	return markers != "" && strings.Trim(markers, "012") == ""
}

// SyllablesOf expands a stress string into per-syllable stresses. Anything
// that is not [ValidMarkers], [UnknownMarkers] included, is one unknown
// syllable.
func SyllablesOf(markers string) []Syllable {
	if !ValidMarkers(markers) {
		return []Syllable{{Stress: NoStress}}
	}
	out := make([]Syllable, len(markers))
	for i := range markers {
		out[i] = Syllable{Stress: Stress(markers[i] - '0'), WordSyllables: len(markers)}
	}
	return out
}

func normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
