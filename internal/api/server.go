// Package api serves the verse analyzer over HTTP.
//
// Every route speaks JSON:
//
//	GET  /v1/lookup/{word}       pronunciation, stress markers, rhyme key
//	GET  /v1/rhymes/{word}       rhyming words (?strict=1&limit=N)
//	GET  /v1/rhymes/{a}/{b}      {"rhymes": bool}
//	POST /v1/meter               meter of stress strings or of a raw line
//	POST /v1/scan                scansion report (optionally archived)
//	GET  /v1/scans               archived records, newest first
//	GET  /v1/scans/{id}          one archived record
//	POST /v1/sonnet/end-words    fourteen rhyming end words
//	GET  /v1/complete            completion candidates (?prefix=&prev=)
//	GET  /v1/palette             practice word palette (?groups=&per=)
//	GET  /v1/live                WebSocket live scansion
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bedwards/sonnet/internal/archive"
	"github.com/bedwards/sonnet/internal/generator"
	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/scansion"
	"github.com/bedwards/sonnet/pkg/cmudict"
)

const (
	// defaultRhymeLimit caps rhyme listings when no limit is given.
	defaultRhymeLimit = 100
	// maxRhymeLimit is the largest accepted rhyme listing.
	maxRhymeLimit = 1000
	// defaultListLimit caps archive listings when no limit is given.
	defaultListLimit = 20
	// maxListLimit is the largest accepted archive listing.
	maxListLimit = 200
	// defaultPaletteGroups and defaultPalettePer size a palette when the
	// query leaves them out.
	defaultPaletteGroups = 4
	defaultPalettePer    = 8
	// maxPaletteGroups and maxPalettePer bound palette requests.
	maxPaletteGroups = 20
	maxPalettePer    = 50
	// maxBodyBytes bounds request bodies.
	maxBodyBytes = 1 << 20
)

// Dictionary resolves words to pronunciations. [*cmudict.Dictionary]
// satisfies it.
type Dictionary interface {
	Resolve(word string) (cmudict.Entry, cmudict.Fallback, bool)
}

// Option configures a [Server].
type Option func(*Server)

// WithArchive enables saving and the /v1/scans routes.
func WithArchive(store archive.Store) Option {
	return func(s *Server) {
		s.archive = store
	}
}

// WithSuggester attaches up to limit suggestions to unknown-word lookups.
func WithSuggester(sg scansion.Suggester, limit int) Option {
	return func(s *Server) {
		s.suggester = sg
		s.suggestions = limit
	}
}

// WithMetrics records HTTP latency and socket counts on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server holds the handlers' dependencies. It is safe for concurrent use.
type Server struct {
	dict        Dictionary
	pipeline    *scansion.Pipeline
	generator   *generator.Generator
	archive     archive.Store
	suggester   scansion.Suggester
	suggestions int
	metrics     *observe.Metrics
}

// New creates a Server.
func New(dict Dictionary, pipeline *scansion.Pipeline, gen *generator.Generator, opts ...Option) *Server {
	s := &Server{dict: dict, pipeline: pipeline, generator: gen}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register adds every /v1 route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/lookup/{word}", s.handleLookup)
	mux.HandleFunc("GET /v1/rhymes/{word}", s.handleRhymingWords)
	mux.HandleFunc("GET /v1/rhymes/{a}/{b}", s.handleRhymes)
	mux.HandleFunc("POST /v1/meter", s.handleMeter)
	mux.HandleFunc("POST /v1/scan", s.handleScan)
	mux.HandleFunc("GET /v1/scans", s.handleListScans)
	mux.HandleFunc("GET /v1/scans/{id}", s.handleGetScan)
	mux.HandleFunc("POST /v1/sonnet/end-words", s.handleEndWords)
	mux.HandleFunc("GET /v1/complete", s.handleComplete)
	mux.HandleFunc("GET /v1/palette", s.handlePalette)
	mux.HandleFunc("GET /v1/live", s.handleLive)
}

// Handler returns the routes wrapped in the tracing and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

type errorResponse struct {
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryLimit parses the limit query parameter. A missing value yields def;
// a malformed or non-positive one is reported as false.
func queryLimit(r *http.Request, def, max int) (int, bool) {
	return queryInt(r, "limit", def, 1, max)
}

// queryInt parses the named query parameter, clamped to max. A missing value
// yields def; a malformed one or one below lo is reported as false.
func queryInt(r *http.Request, name string, def, lo, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo {
		return 0, false
	}
	return min(n, max), true
}
