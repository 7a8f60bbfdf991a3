package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/resilience"
)

// Resilient is a [Store] that tries its targets in order, each behind its
// own circuit breaker. With a Postgres primary and a [MemStore] fallback,
// records written during a database outage stay readable from memory until
// the process exits.
//
// Not-found answers and caller cancellations never trip a breaker.
type Resilient struct {
	targets *resilience.Failover[Store]
	metrics *observe.Metrics
}

var _ Store = (*Resilient)(nil)

// Target names a store placed behind a [Resilient].
type Target struct {
	Name  string
	Store Store
}

// NewResilient creates a Resilient over targets, in priority order. A nil
// metrics disables error counting.
func NewResilient(cfg resilience.BreakerConfig, metrics *observe.Metrics, targets ...Target) *Resilient {
	cfg.IsFailure = isBackendFailure
	f := resilience.NewFailover[Store](cfg)
	for _, t := range targets {
		f.Add(t.Name, t.Store)
	}
	return &Resilient{targets: f, metrics: metrics}
}

func isBackendFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// States reports the breaker state of each target by name.
func (s *Resilient) States() map[string]resilience.State {
	return s.targets.States()
}

func (s *Resilient) Save(ctx context.Context, r *Record) error {
	// Validate once up front so a bad record is not retried on every target.
	if err := prepare(r); err != nil {
		return err
	}
	err := s.targets.Execute(func(st Store) error {
		return st.Save(ctx, r)
	})
	return s.fail(ctx, "save", err)
}

func (s *Resilient) Get(ctx context.Context, id string) (*Record, error) {
	r, err := resilience.Do(s.targets, func(st Store) (*Record, error) {
		return st.Get(ctx, id)
	})
	return r, s.fail(ctx, "get", err)
}

func (s *Resilient) List(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	out, err := resilience.Do(s.targets, func(st Store) ([]Record, error) {
		return st.List(ctx, kind, limit)
	})
	return out, s.fail(ctx, "list", err)
}

// Ping succeeds when any target is reachable.
func (s *Resilient) Ping(ctx context.Context) error {
	err := s.targets.Execute(func(st Store) error {
		return st.Ping(ctx)
	})
	return s.fail(ctx, "ping", err)
}

// fail normalises a failover error. A not-found answer is returned as plain
// [ErrNotFound]; anything else is counted and wrapped with the operation.
func (s *Resilient) fail(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if s.metrics != nil {
		s.metrics.RecordArchiveError(ctx, op)
	}
	observe.Logger(ctx).Warn("archive: operation failed", "op", op, "err", err)
	return fmt.Errorf("archive: %s: %w", op, err)
}
