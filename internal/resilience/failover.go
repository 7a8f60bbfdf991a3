package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no target in a [Failover] answered. The
// error also wraps the last target's error, so callers can still match on
// it with [errors.Is].
var ErrAllFailed = errors.New("resilience: all targets failed")

type target[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Failover holds an ordered list of interchangeable targets, each guarded by
// its own [Breaker]. Targets are tried in the order they were added.
//
// Targets must be added before the Failover is shared between goroutines.
type Failover[T any] struct {
	cfg     BreakerConfig
	targets []target[T]
}

// NewFailover creates an empty Failover whose breakers use cfg. The Name
// field of cfg is replaced by each target's name.
func NewFailover[T any](cfg BreakerConfig) *Failover[T] {
	return &Failover[T]{cfg: cfg}
}

// Add appends a target and returns f for chaining.
func (f *Failover[T]) Add(name string, value T) *Failover[T] {
	cfg := f.cfg
	cfg.Name = name
	f.targets = append(f.targets, target[T]{name: name, value: value, breaker: NewBreaker(cfg)})
	return f
}

// Len returns the number of targets.
func (f *Failover[T]) Len() int { return len(f.targets) }

// States returns the breaker state of every target, keyed by name.
func (f *Failover[T]) States() map[string]State {
	out := make(map[string]State, len(f.targets))
	for _, t := range f.targets {
		out[t.name] = t.breaker.State()
	}
	return out
}

// Execute calls fn on each target in order until one returns nil.
func (f *Failover[T]) Execute(fn func(T) error) error {
	_, err := Do(f, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// Do is [Failover.Execute] for calls that produce a value.
func Do[T, R any](f *Failover[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	if len(f.targets) == 0 {
		return zero, fmt.Errorf("%w: no targets", ErrAllFailed)
	}
	for i := range f.targets {
		t := &f.targets[i]
		var out R
		err := t.breaker.Execute(func() error {
			var err error
			out, err = fn(t.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping target, circuit open", "target", t.name)
		} else {
			slog.Debug("resilience: target failed, trying next", "target", t.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
