// Package archive persists scansion reports and generated end words so they
// can be fetched again by ID.
//
// Two backends implement [Store]: [MemStore] for single-process use and
// tests, and [PostgresStore]. [Resilient] puts a primary store in front of a
// fallback behind per-store circuit breakers.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bedwards/sonnet/internal/scansion"
)

// ErrNotFound is returned when no record has the requested ID.
var ErrNotFound = errors.New("archive: record not found")

// Kind distinguishes record payloads.
type Kind string

const (
	// KindScan records carry a scansion [scansion.Report].
	KindScan Kind = "scan"
	// KindEndWords records carry a generated end-word scheme.
	KindEndWords Kind = "end_words"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindScan || k == KindEndWords }

// Record is one archived result.
type Record struct {
	ID        string           `json:"id"`
	Kind      Kind             `json:"kind"`
	Lines     []string         `json:"lines,omitempty"`
	Report    *scansion.Report `json:"report,omitempty"`
	EndWords  []string         `json:"end_words,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks that the record carries the payload its kind calls for.
func (r *Record) Validate() error {
	switch r.Kind {
	case KindScan:
		if r.Report == nil {
			return fmt.Errorf("archive: scan record has no report")
		}
	case KindEndWords:
		if len(r.EndWords) == 0 {
			return fmt.Errorf("archive: end-words record has no words")
		}
	default:
		return fmt.Errorf("archive: unknown record kind %q", r.Kind)
	}
	return nil
}

// prepare validates r and fills in a missing ID and timestamp.
func prepare(r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Store persists records. Implementations must be safe for concurrent use.
type Store interface {
	// Save validates and stores r, assigning ID and CreatedAt when empty.
	Save(ctx context.Context, r *Record) error

	// Get returns the record with the given ID, or [ErrNotFound].
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, newest first. An empty kind lists
	// every kind.
	List(ctx context.Context, kind Kind, limit int) ([]Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
