package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bedwards/sonnet/internal/archive"
	"github.com/bedwards/sonnet/internal/generator"
	"github.com/bedwards/sonnet/internal/meter"
	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/phonetic"
	"github.com/bedwards/sonnet/internal/rhyme"
	"github.com/bedwards/sonnet/internal/scansion"
	"github.com/bedwards/sonnet/pkg/cmudict"
)

type lookupResponse struct {
	Word          string                `json:"word"`
	Found         bool                  `json:"found"`
	Headword      string                `json:"headword,omitempty"`
	Fallback      string                `json:"fallback,omitempty"`
	Pronunciation string                `json:"pronunciation,omitempty"`
	StressMarkers string                `json:"stress_markers"`
	Syllables     int                   `json:"syllables"`
	RhymeKey      string                `json:"rhyme_key,omitempty"`
	Suggestions   []phonetic.Suggestion `json:"suggestions,omitempty"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	word := strings.ToLower(r.PathValue("word"))

	e, fb, ok := s.dict.Resolve(word)
	if !ok {
		resp := lookupResponse{Word: word, StressMarkers: cmudict.UnknownMarkers}
		if s.suggester != nil && s.suggestions > 0 {
			resp.Suggestions = s.suggester.Suggest(word, s.suggestions)
		}
		s.metrics.RecordLookup(r.Context(), "unknown")
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	s.metrics.RecordLookup(r.Context(), fb.String())

	resp := lookupResponse{
		Word:          word,
		Found:         true,
		Headword:      e.Word,
		Fallback:      fb.String(),
		Pronunciation: e.Pronunciation(),
		StressMarkers: e.StressMarkers(),
		Syllables:     e.Syllables(),
	}
	if key, ok := e.RhymeKey(); ok {
		resp.RhymeKey = string(key)
	}
	writeJSON(w, http.StatusOK, resp)
}

type rhymingWordsResponse struct {
	Word   string   `json:"word"`
	Strict bool     `json:"strict"`
	Words  []string `json:"words"`
}

func (s *Server) handleRhymingWords(w http.ResponseWriter, r *http.Request) {
	word := strings.ToLower(r.PathValue("word"))
	limit, ok := queryLimit(r, defaultRhymeLimit, maxRhymeLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	strict, _ := strconv.ParseBool(r.URL.Query().Get("strict"))

	m := s.pipeline.Matcher()
	seq := m.RhymingWords(word)
	if strict {
		seq = m.StrictRhymes(word)
	}

	words := make([]string, 0, min(limit, 16))
	for cand := range seq {
		words = append(words, cand)
		if len(words) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, rhymingWordsResponse{Word: word, Strict: strict, Words: words})
}

type rhymesResponse struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Rhymes bool   `json:"rhymes"`
}

func (s *Server) handleRhymes(w http.ResponseWriter, r *http.Request) {
	a, b := r.PathValue("a"), r.PathValue("b")
	writeJSON(w, http.StatusOK, rhymesResponse{
		A:      a,
		B:      b,
		Rhymes: s.pipeline.Matcher().Rhymes(a, b),
	})
}

// meterRequest carries either per-word stress strings or a raw line.
type meterRequest struct {
	Words []string `json:"words,omitempty"`
	Line  string   `json:"line,omitempty"`
}

func (s *Server) handleMeter(w http.ResponseWriter, r *http.Request) {
	var req meterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case req.Line != "":
		writeJSON(w, http.StatusOK, s.pipeline.ScanLine(r.Context(), req.Line))
	case len(req.Words) > 0:
		for _, m := range req.Words {
			if !validMarkers(m) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid stress string %q", m))
				return
			}
		}
		writeJSON(w, http.StatusOK, meter.Meter(req.Words))
	default:
		writeError(w, http.StatusBadRequest, "one of words or line is required")
	}
}

// validMarkers accepts the unknown sentinel or a non-empty run of 0, 1, 2.
func validMarkers(m string) bool {
	return m == cmudict.UnknownMarkers || cmudict.ValidMarkers(m)
}

type scanRequest struct {
	Lines []string `json:"lines"`
	Save  bool     `json:"save,omitempty"`
}

type scanResponse struct {
	ID string `json:"id,omitempty"`
	*scansion.Report
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "lines is required")
		return
	}

	rep, err := s.pipeline.Scan(r.Context(), req.Lines)
	if err != nil {
		s.scanError(w, err)
		return
	}

	resp := scanResponse{Report: rep}
	if req.Save {
		resp.ID = s.save(r.Context(), &archive.Record{Kind: archive.KindScan, Lines: req.Lines, Report: rep})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) scanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scansion.ErrTooManyLines):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// save archives rec and returns its ID. Archive failures are logged and
// never fail the request; the empty ID tells the caller nothing was kept.
func (s *Server) save(ctx context.Context, rec *archive.Record) string {
	if s.archive == nil {
		return ""
	}
	if err := s.archive.Save(ctx, rec); err != nil {
		observe.Logger(ctx).Warn("api: archive save failed", "kind", rec.Kind, "err", err)
		return ""
	}
	return rec.ID
}

type listResponse struct {
	Records []archive.Record `json:"records"`
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	limit, ok := queryLimit(r, defaultListLimit, maxListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	kind := archive.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", kind))
		return
	}

	recs, err := s.archive.List(r.Context(), kind, limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if recs == nil {
		recs = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{Records: recs})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	rec, err := s.archive.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

type endWordsResponse struct {
	ID    string                         `json:"id,omitempty"`
	Words generator.EndWords             `json:"words"`
	Pairs [len(rhyme.SonnetPairs)][2]int `json:"pairs"`
}

func (s *Server) handleEndWords(w http.ResponseWriter, r *http.Request) {
	words, err := s.generator.EndWords(r.Context())
	if err != nil {
		s.generationError(w, err)
		return
	}

	resp := endWordsResponse{Words: words, Pairs: rhyme.SonnetPairs}
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		resp.ID = s.save(r.Context(), &archive.Record{Kind: archive.KindEndWords, EndWords: words[:]})
	}
	writeJSON(w, http.StatusOK, resp)
}

type completeResponse struct {
	Prefix string   `json:"prefix"`
	Prev   string   `json:"prev,omitempty"`
	Words  []string `json:"words"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := strings.ToLower(q.Get("prefix"))
	prev := q.Get("prev")

	words := s.generator.Complete(prefix, prev)
	if words == nil {
		words = []string{}
	}
	writeJSON(w, http.StatusOK, completeResponse{Prefix: prefix, Prev: prev, Words: words})
}

// generationError answers a failed draw. Exhaustion is transient, so the
// client is told to retry.
func (s *Server) generationError(w http.ResponseWriter, err error) {
	if errors.Is(err, generator.ErrGenerationExhausted) {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Retry: true})
		return
	}
	s.scanError(w, err)
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	groups, ok := queryInt(r, "groups", defaultPaletteGroups, 0, maxPaletteGroups)
	if !ok {
		writeError(w, http.StatusBadRequest, "groups must be a non-negative integer")
		return
	}
	per, ok := queryInt(r, "per", defaultPalettePer, 0, maxPalettePer)
	if !ok {
		writeError(w, http.StatusBadRequest, "per must be a non-negative integer")
		return
	}
	p, err := s.generator.Palette(groups, per)
	if err != nil {
		s.generationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
