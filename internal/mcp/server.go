// Package mcp exposes the verse analyzer as a Model Context Protocol tool
// server.
//
// The same [mcpsdk.Server] can be served over stdio ([Serve]) for editor and
// assistant integrations, or mounted on the HTTP API with [HTTPHandler]
// using the Streamable HTTP transport.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bedwards/sonnet/internal/generator"
	"github.com/bedwards/sonnet/internal/meter"
	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/scansion"
	"github.com/bedwards/sonnet/pkg/cmudict"
)

const (
	// defaultRhymeLimit caps rhyming_words when no limit is given.
	defaultRhymeLimit = 50
	// maxRhymeLimit is the largest accepted rhyming_words limit.
	maxRhymeLimit = 500
	// defaultPaletteGroups and defaultPalettePer size a palette when the
	// call leaves them out.
	defaultPaletteGroups = 4
	defaultPalettePer    = 8
	// maxPaletteGroups and maxPalettePer bound palette requests.
	maxPaletteGroups = 20
	maxPalettePer    = 50
	// surface labels tool-call metrics.
	surface = "mcp"
)

// Dictionary resolves words to pronunciations. [*cmudict.Dictionary]
// satisfies it.
type Dictionary interface {
	Resolve(word string) (cmudict.Entry, cmudict.Fallback, bool)
}

// Config holds the tool server's identity and dependencies.
type Config struct {
	Name    string
	Version string

	Dictionary Dictionary
	Pipeline   *scansion.Pipeline
	Generator  *generator.Generator
	Metrics    *observe.Metrics // optional
}

// Tools implements the verse tools. It is safe for concurrent use.
type Tools struct {
	dict      Dictionary
	pipeline  *scansion.Pipeline
	generator *generator.Generator
	metrics   *observe.Metrics
}

// NewServer creates an MCP server with every verse tool registered.
func NewServer(cfg Config) *mcpsdk.Server {
	t := &Tools{
		dict:      cfg.Dictionary,
		pipeline:  cfg.Pipeline,
		generator: cfg.Generator,
		metrics:   cfg.Metrics,
	}
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	t.Register(s)
	return s
}

// Serve runs s over stdin/stdout until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, s *mcpsdk.Server) error {
	if err := s.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: serve stdio: %w", err)
	}
	return nil
}

// HTTPHandler serves s over the Streamable HTTP transport.
func HTTPHandler(s *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s }, nil)
}

// Register adds the verse tools to s.
func (t *Tools) Register(s *mcpsdk.Server) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "lookup",
		Description: "Look up a word's CMU pronunciation, stress markers and rhyme key. Archaic spellings, 'd elisions and ou/o variants are resolved.",
	}, instrument(t, "lookup", t.lookup))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "meter",
		Description: "Score a line against iambic pentameter. Pass either the raw line or one stress string per word (digits 0, 1, 2, or ? for unknown).",
	}, instrument(t, "meter", t.meter))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "rhymes",
		Description: "Report whether two words rhyme. A word never rhymes with itself.",
	}, instrument(t, "rhymes", t.rhymes))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "rhyming_words",
		Description: "List dictionary words that rhyme with a word, in dictionary order.",
	}, instrument(t, "rhyming_words", t.rhymingWords))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "scan",
		Description: "Scan up to one sonnet of lines: per-line stress marks and meter scores, ABAB CDCD EFEF GG rhyme mismatches, and unknown words.",
	}, instrument(t, "scan", t.scan))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "sonnet_end_words",
		Description: "Draw fourteen random end words that satisfy the ABAB CDCD EFEF GG rhyme scheme.",
	}, instrument(t, "sonnet_end_words", t.sonnetEndWords))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "complete",
		Description: "Suggest words starting with a prefix, one per syllable count from five down to one, continuing the stress alternation after the previous word.",
	}, instrument(t, "complete", t.complete))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "palette",
		Description: "Build a practice palette for strict iambic verse: rhyme families of two-syllable iambs, sampled iambs, trochees and amphibrachs, and unstressable function words.",
	}, instrument(t, "palette", t.palette))
}

// instrument wraps a tool handler with a span, a tool-call metric and a
// debug log line.
func instrument[In, Out any](t *Tools, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		start := time.Now()
		ctx, span := observe.StartSpan(ctx, "mcp.tool."+name)
		res, out, err := h(ctx, req, in)
		observe.EndSpan(span, err)

		status := "ok"
		if err != nil {
			status = "error"
		}
		if t.metrics != nil {
			t.metrics.RecordToolCall(ctx, surface, name, status)
		}
		observe.Logger(ctx).Debug("mcp: tool call", "tool", name, "status", status, "duration", time.Since(start))
		return res, out, err
	}
}

type LookupInput struct {
	Word string `json:"word" jsonschema:"the word to look up"`
}

type LookupOutput struct {
	Word          string `json:"word"`
	Found         bool   `json:"found"`
	Headword      string `json:"headword,omitempty"`
	Fallback      string `json:"fallback,omitempty"`
	Pronunciation string `json:"pronunciation,omitempty"`
	StressMarkers string `json:"stress_markers"`
	Syllables     int    `json:"syllables"`
	RhymeKey      string `json:"rhyme_key,omitempty"`
}

func (t *Tools) lookup(_ context.Context, _ *mcpsdk.CallToolRequest, in LookupInput) (*mcpsdk.CallToolResult, LookupOutput, error) {
	word := strings.ToLower(strings.TrimSpace(in.Word))
	if word == "" {
		return nil, LookupOutput{}, errors.New("word is required")
	}
	e, fb, ok := t.dict.Resolve(word)
	if !ok {
		return nil, LookupOutput{Word: word, StressMarkers: cmudict.UnknownMarkers}, nil
	}
	out := LookupOutput{
		Word:          word,
		Found:         true,
		Headword:      e.Word,
		Fallback:      fb.String(),
		Pronunciation: e.Pronunciation(),
		StressMarkers: e.StressMarkers(),
		Syllables:     e.Syllables(),
	}
	if key, ok := e.RhymeKey(); ok {
		out.RhymeKey = string(key)
	}
	return nil, out, nil
}

type MeterInput struct {
	Line     string   `json:"line,omitempty" jsonschema:"a raw line of verse"`
	Stresses []string `json:"stresses,omitempty" jsonschema:"one stress string per word, such as 01 or 1"`
}

// meter answers with a [scansion.Line] for a raw line and a [meter.Result]
// for stress strings, so its output is left untyped.
func (t *Tools) meter(ctx context.Context, _ *mcpsdk.CallToolRequest, in MeterInput) (*mcpsdk.CallToolResult, any, error) {
	switch {
	case in.Line != "":
		return nil, t.pipeline.ScanLine(ctx, in.Line), nil
	case len(in.Stresses) > 0:
		for _, s := range in.Stresses {
			if s != cmudict.UnknownMarkers && !cmudict.ValidMarkers(s) {
				return nil, nil, fmt.Errorf("invalid stress string %q", s)
			}
		}
		return nil, meter.Meter(in.Stresses), nil
	default:
		return nil, nil, errors.New("one of line or stresses is required")
	}
}

type RhymesInput struct {
	A string `json:"a" jsonschema:"the first word"`
	B string `json:"b" jsonschema:"the second word"`
}

type RhymesOutput struct {
	Rhymes bool `json:"rhymes"`
}

func (t *Tools) rhymes(_ context.Context, _ *mcpsdk.CallToolRequest, in RhymesInput) (*mcpsdk.CallToolResult, RhymesOutput, error) {
	return nil, RhymesOutput{Rhymes: t.pipeline.Matcher().Rhymes(in.A, in.B)}, nil
}

type RhymingWordsInput struct {
	Word   string `json:"word" jsonschema:"the word to rhyme"`
	Strict bool   `json:"strict,omitempty" jsonschema:"only return two-syllable iambs"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of words, default 50"`
}

type WordsOutput struct {
	Words []string `json:"words"`
}

func (t *Tools) rhymingWords(_ context.Context, _ *mcpsdk.CallToolRequest, in RhymingWordsInput) (*mcpsdk.CallToolResult, WordsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultRhymeLimit
	}
	limit = min(limit, maxRhymeLimit)

	m := t.pipeline.Matcher()
	seq := m.RhymingWords(in.Word)
	if in.Strict {
		seq = m.StrictRhymes(in.Word)
	}
	out := WordsOutput{Words: []string{}}
	for w := range seq {
		out.Words = append(out.Words, w)
		if len(out.Words) == limit {
			break
		}
	}
	return nil, out, nil
}

type ScanInput struct {
	Lines []string `json:"lines" jsonschema:"the lines of verse, at most one sonnet"`
}

func (t *Tools) scan(ctx context.Context, _ *mcpsdk.CallToolRequest, in ScanInput) (*mcpsdk.CallToolResult, any, error) {
	if len(in.Lines) == 0 {
		return nil, nil, errors.New("lines is required")
	}
	rep, err := t.pipeline.Scan(ctx, in.Lines)
	if err != nil {
		return nil, nil, err
	}
	return nil, rep, nil
}

type EndWordsOutput struct {
	Scheme string   `json:"scheme"`
	Words  []string `json:"words"`
}

func (t *Tools) sonnetEndWords(ctx context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, EndWordsOutput, error) {
	words, err := t.generator.EndWords(ctx)
	if err != nil {
		if errors.Is(err, generator.ErrGenerationExhausted) {
			return nil, EndWordsOutput{}, fmt.Errorf("%w; call again to retry", err)
		}
		return nil, EndWordsOutput{}, err
	}
	return nil, EndWordsOutput{Scheme: "ABABCDCDEFEFGG", Words: words[:]}, nil
}

type CompleteInput struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"the start of the word"`
	Prev   string `json:"prev,omitempty" jsonschema:"the previous word on the line"`
}

func (t *Tools) complete(_ context.Context, _ *mcpsdk.CallToolRequest, in CompleteInput) (*mcpsdk.CallToolResult, WordsOutput, error) {
	words := t.generator.Complete(strings.ToLower(in.Prefix), in.Prev)
	if words == nil {
		words = []string{}
	}
	return nil, WordsOutput{Words: words}, nil
}

type PaletteInput struct {
	Groups *int `json:"groups,omitempty" jsonschema:"number of rhyme families, default 4"`
	Per    *int `json:"per,omitempty" jsonschema:"words sampled per stress pattern, default 8"`
}

func (t *Tools) palette(_ context.Context, _ *mcpsdk.CallToolRequest, in PaletteInput) (*mcpsdk.CallToolResult, generator.Palette, error) {
	groups, per := defaultPaletteGroups, defaultPalettePer
	if in.Groups != nil {
		groups = *in.Groups
	}
	if in.Per != nil {
		per = *in.Per
	}
	if groups < 0 || per < 0 {
		return nil, generator.Palette{}, errors.New("groups and per must not be negative")
	}
	p, err := t.generator.Palette(min(groups, maxPaletteGroups), min(per, maxPalettePer))
	if err != nil {
		if errors.Is(err, generator.ErrGenerationExhausted) {
			return nil, generator.Palette{}, fmt.Errorf("%w; call again to retry", err)
		}
		return nil, generator.Palette{}, err
	}
	return nil, p, nil
}
