// Package scansion turns raw lines of verse into a scansion report: per-line
// stress marks and meter scores, rhyme-scheme mismatches between line ends,
// and suggestions for words the dictionary does not know.
package scansion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/bedwards/sonnet/internal/meter"
	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/phonetic"
	"github.com/bedwards/sonnet/internal/rhyme"
	"github.com/bedwards/sonnet/pkg/cmudict"
)

// DefaultMaxLines is the size of one sonnet block.
const DefaultMaxLines = 14

// ErrTooManyLines is returned by [Pipeline.Scan] when the input is longer
// than the configured block size.
var ErrTooManyLines = errors.New("scansion: too many lines")

// trimChars are stripped from both ends of every whitespace-separated token.
const trimChars = ",;:.?!"

// typography folds typeset apostrophes and dashes to their ASCII forms.
func typography(r rune) rune {
	switch r {
	case '\u2018', '\u2019', '\u02BC':
		return '\''
	case '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2015':
		return '-'
	}
	return r
}

// Tokenize splits a line into lowercase words: on whitespace, then on
// hyphens, with surrounding punctuation removed. The line is NFKC-normalized
// and typeset apostrophes and dashes are folded first, so "summer’s"
// finds "summer's".
func Tokenize(line string) []string {
	line = strings.Map(typography, norm.NFKC.String(line))
	var out []string
	for _, field := range strings.Fields(line) {
		field = strings.ToLower(strings.Trim(field, trimChars))
		for _, part := range strings.Split(field, "-") {
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Dictionary is what the pipeline needs from the pronouncing dictionary.
// [*cmudict.Dictionary] satisfies it.
type Dictionary interface {
	rhyme.Index
	Resolve(word string) (cmudict.Entry, cmudict.Fallback, bool)
}

var _ Dictionary = (*cmudict.Dictionary)(nil)

// Suggester proposes known words for unknown ones.
// [*phonetic.Suggester] satisfies it.
type Suggester interface {
	Suggest(word string, limit int) []phonetic.Suggestion
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithSuggester attaches up to limit suggestions to every unknown word.
func WithSuggester(s Suggester, limit int) Option {
	return func(p *Pipeline) {
		p.suggester = s
		p.suggestions = limit
	}
}

// WithMaxLines sets the largest block [Pipeline.Scan] accepts.
func WithMaxLines(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxLines = n
		}
	}
}

// WithWorkers caps how many lines are scanned at once. Zero or less means
// one goroutine per line.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// WithMetrics records lookups and scan latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline scans blocks of verse. It holds no per-scan state and is safe
// for concurrent use.
type Pipeline struct {
	dict        Dictionary
	matcher     *rhyme.Matcher
	suggester   Suggester
	suggestions int
	maxLines    int
	workers     int
	metrics     *observe.Metrics
}

// New creates a Pipeline over dict.
func New(dict Dictionary, opts ...Option) *Pipeline {
	p := &Pipeline{
		dict:     dict,
		matcher:  rhyme.NewMatcher(dict),
		maxLines: DefaultMaxLines,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Matcher returns the rhyme matcher the pipeline checks line ends with.
func (p *Pipeline) Matcher() *rhyme.Matcher { return p.matcher }

// MaxLines returns the largest block [Pipeline.Scan] accepts.
func (p *Pipeline) MaxLines() int { return p.maxLines }

// Word is one scanned token.
type Word struct {
	Text          string                `json:"text"`
	Known         bool                  `json:"known"`
	Markers       string                `json:"markers"`
	Pronunciation string                `json:"pronunciation,omitempty"`
	Fallback      string                `json:"fallback,omitempty"`
	Suggestions   []phonetic.Suggestion `json:"suggestions,omitempty"`
}

// Line is the scansion of one input line.
type Line struct {
	Index    int            `json:"index"`
	Text     string         `json:"text"`
	Words    []Word         `json:"words"`
	Meter    meter.Result   `json:"meter"`
	Scansion meter.Scansion `json:"scansion"`
	Rendered string         `json:"rendered"`
	EndWord  string         `json:"end_word,omitempty"`
}

// Report is the scansion of a block of lines.
type Report struct {
	Lines []Line `json:"lines"`
	// Mismatches lists rhyme-scheme pairs whose end words do not rhyme.
	Mismatches []rhyme.Mismatch `json:"rhyme_mismatches"`
	// Unknown lists distinct unknown words in order of first appearance.
	Unknown []string `json:"unknown_words"`
	// Pentameter counts lines that are strict iambic pentameter.
	Pentameter int `json:"pentameter_lines"`
}

// Scan analyses lines concurrently and assembles the report. It fails only
// on oversized input or a cancelled context; unknown words are reported,
// not treated as errors.
func (p *Pipeline) Scan(ctx context.Context, lines []string) (_ *Report, err error) {
	if len(lines) > p.maxLines {
		return nil, fmt.Errorf("%w: got %d, limit %d", ErrTooManyLines, len(lines), p.maxLines)
	}

	ctx, span := observe.StartSpan(ctx, "scansion.Scan")
	defer func() { observe.EndSpan(span, err) }()
	start := time.Now()

	out := make([]Line, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i, text := range lines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.scanLine(gctx, i, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{Lines: out}
	endWords := make([]string, len(out))
	seen := make(map[string]struct{})
	for i, l := range out {
		endWords[i] = l.EndWord
		if l.Meter.IsIambicPentameter {
			rep.Pentameter++
		}
		for _, w := range l.Words {
			if w.Known {
				continue
			}
			if _, dup := seen[w.Text]; !dup {
				seen[w.Text] = struct{}{}
				rep.Unknown = append(rep.Unknown, w.Text)
			}
		}
	}
	rep.Mismatches = p.matcher.CheckScheme(endWords)

	if p.metrics != nil {
		p.metrics.RecordScan(ctx, len(lines), len(rep.Unknown), time.Since(start))
	}
	observe.Logger(ctx).Debug("scansion: block scanned",
		"lines", len(lines),
		"pentameter", rep.Pentameter,
		"mismatches", len(rep.Mismatches),
		"unknown", len(rep.Unknown),
	)
	return rep, nil
}

// ScanLine scans a single line with no rhyme checking.
func (p *Pipeline) ScanLine(ctx context.Context, text string) Line {
	return p.scanLine(ctx, 0, text)
}

func (p *Pipeline) scanLine(ctx context.Context, index int, text string) Line {
	tokens := Tokenize(text)
	line := Line{Index: index, Text: text, Words: make([]Word, 0, len(tokens))}

	markers := make([]string, 0, len(tokens))
	var syllables []cmudict.Syllable
	for _, tok := range tokens {
		w := p.lookup(ctx, tok)
		line.Words = append(line.Words, w)
		markers = append(markers, w.Markers)
		syllables = append(syllables, cmudict.SyllablesOf(w.Markers)...)
	}

	line.Meter = meter.Meter(markers)
	line.Scansion = meter.Score(syllables)
	line.Rendered = line.Scansion.Render()
	if len(tokens) > 0 {
		line.EndWord = tokens[len(tokens)-1]
	}
	return line
}

func (p *Pipeline) lookup(ctx context.Context, token string) Word {
	e, fb, ok := p.dict.Resolve(token)
	if !ok {
		if p.metrics != nil {
			p.metrics.RecordLookup(ctx, "unknown")
		}
		w := Word{Text: token, Markers: cmudict.UnknownMarkers}
		if p.suggester != nil && p.suggestions > 0 {
			w.Suggestions = p.suggester.Suggest(token, p.suggestions)
		}
		return w
	}
	if p.metrics != nil {
		p.metrics.RecordLookup(ctx, fb.String())
	}
	w := Word{
		Text:          token,
		Known:         true,
		Markers:       e.StressMarkers(),
		Pronunciation: e.Pronunciation(),
	}
	if fb != cmudict.FallbackNone {
		w.Fallback = fb.String()
	}
	return w
}
