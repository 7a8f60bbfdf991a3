// Package generator draws sonnet end words and completion candidates from
// the stress buckets and rhyme index of a pronouncing dictionary.
//
// All draws are random. A [Generator] is safe for concurrent use: by default
// it draws from the math/rand/v2 top-level source, and a seeded source set
// with [WithRand] is guarded by a mutex.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/rhyme"
	"github.com/bedwards/sonnet/pkg/cmudict"
)

// ErrGenerationExhausted is returned when the rhyme scheme could not be
// satisfied within the attempt budget. It is recoverable: a fresh call
// draws again from scratch.
var ErrGenerationExhausted = errors.New("generator: rhyme scheme exhausted")

// ErrEmptyBucket is returned when every candidate bucket for a line is
// empty. It wraps [ErrGenerationExhausted].
var ErrEmptyBucket = fmt.Errorf("%w: no candidate words", ErrGenerationExhausted)

// DefaultMaxAttempts is the per-pair draw budget.
const DefaultMaxAttempts = 300

// maxEndSyllables is the longest end word drawn.
const maxEndSyllables = 4

// Lines is the number of lines in a sonnet.
const Lines = 14

// Source is the dictionary surface the generator draws from.
// [*cmudict.Dictionary] satisfies it.
type Source interface {
	rhyme.Index
	Candidates(syllables int, unstressed bool, prefix string) []string
	BucketSize(syllables int, unstressed bool) int
	StressMarkers(word string) (string, bool)
}

var _ Source = (*cmudict.Dictionary)(nil)

// Option configures a [Generator].
type Option func(*Generator)

// WithMaxAttempts sets the per-pair draw budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		g.SetMaxAttempts(n)
	}
}

// WithRand makes the generator draw from r. Useful for reproducible tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = r
	}
}

// WithMetrics records attempt counts and exhaustion on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// Generator draws words satisfying syllable, stress and rhyme constraints.
type Generator struct {
	src         Source
	matcher     *rhyme.Matcher
	maxAttempts atomic.Int64
	metrics     *observe.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator over src.
func New(src Source, opts ...Option) *Generator {
	g := &Generator{
		src:     src,
		matcher: rhyme.NewMatcher(src),
	}
	g.maxAttempts.Store(DefaultMaxAttempts)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetMaxAttempts changes the per-pair draw budget. It is safe to call while
// generations are running; values below 1 are ignored.
func (g *Generator) SetMaxAttempts(n int) {
	if n > 0 {
		g.maxAttempts.Store(int64(n))
	}
}

// MaxAttempts returns the per-pair draw budget.
func (g *Generator) MaxAttempts() int { return int(g.maxAttempts.Load()) }

func (g *Generator) intN(n int) int {
	if g.rng == nil {
		return rand.IntN(n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

func (g *Generator) pick(words []string) string {
	return words[g.intN(len(words))]
}

// bucket identifies one stress bucket.
type bucket struct {
	syllables  int
	unstressed bool
}

// lineBuckets are the buckets whose words end on a beat when placed at the
// end of a pentameter line: an even syllable count must start unstressed,
// an odd one stressed.
func lineBuckets() []bucket {
	out := make([]bucket, 0, maxEndSyllables)
	for n := 1; n <= maxEndSyllables; n++ {
		out = append(out, bucket{syllables: n, unstressed: n%2 == 0})
	}
	return out
}

// coupletBuckets are the stressed-start buckets used for the final couplet.
func coupletBuckets() []bucket {
	var out []bucket
	for n := 1; n <= maxEndSyllables; n += 2 {
		out = append(out, bucket{syllables: n, unstressed: false})
	}
	return out
}

// drawWeighted picks a word from the union of buckets, each bucket chosen
// with probability proportional to its size.
func (g *Generator) drawWeighted(buckets []bucket) (string, bool) {
	cum := make([]int, len(buckets))
	total := 0
	for i, b := range buckets {
		total += g.src.BucketSize(b.syllables, b.unstressed)
		cum[i] = total
	}
	if total == 0 {
		return "", false
	}
	r := g.intN(total)
	for i, c := range cum {
		if r < c {
			b := buckets[i]
			return g.pick(g.src.Candidates(b.syllables, b.unstressed, "")), true
		}
	}
	return "", false
}

// drawPair draws a word and a distinct rhyming partner.
func (g *Generator) drawPair(buckets []bucket) (first, second string, attempts int, err error) {
	limit := g.MaxAttempts()
	for attempts = 1; attempts <= limit; attempts++ {
		w, ok := g.drawWeighted(buckets)
		if !ok {
			return "", "", attempts, ErrEmptyBucket
		}
		key, ok := g.matcher.Key(w)
		if !ok {
			continue
		}
		group := g.src.RhymeGroup(key)
		if len(group) < 2 {
			continue
		}
		partner := g.pick(group)
		if partner == w {
			continue
		}
		return w, partner, attempts, nil
	}
	return "", "", limit, ErrGenerationExhausted
}

// EndWords is one line-end word per sonnet line.
type EndWords [Lines]string

// EndWords draws fourteen end words such that every pair in
// [rhyme.SonnetPairs] rhymes. On failure it returns an error wrapping
// [ErrGenerationExhausted] and never a partial or scheme-violating result.
func (g *Generator) EndWords(ctx context.Context) (EndWords, error) {
	start := time.Now()
	var out EndWords
	total := 0
	for i, p := range rhyme.SonnetPairs {
		if err := ctx.Err(); err != nil {
			return EndWords{}, err
		}
		buckets := lineBuckets()
		if i == len(rhyme.SonnetPairs)-1 {
			buckets = coupletBuckets()
		}
		a, b, attempts, err := g.drawPair(buckets)
		total += attempts
		if err != nil {
			g.record(ctx, total, start, "exhausted")
			slog.Debug("generator: pair exhausted", "pair", i, "attempts", attempts, "err", err)
			return EndWords{}, fmt.Errorf("pair (%d,%d): %w", p[0], p[1], err)
		}
		out[p[0]], out[p[1]] = a, b
	}
	g.record(ctx, total, start, "ok")
	return out, nil
}

func (g *Generator) record(ctx context.Context, attempts int, start time.Time, status string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordGeneration(ctx, attempts, time.Since(start), status)
}
