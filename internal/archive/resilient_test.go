package archive

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/resilience"
)

var errDown = errors.New("database is down")

// downStore fails every call.
type downStore struct {
	calls atomic.Int32
}

func (s *downStore) Save(context.Context, *Record) error { s.calls.Add(1); return errDown }
func (s *downStore) Get(context.Context, string) (*Record, error) {
	s.calls.Add(1)
	return nil, errDown
}
func (s *downStore) List(context.Context, Kind, int) ([]Record, error) {
	s.calls.Add(1)
	return nil, errDown
}
func (s *downStore) Ping(context.Context) error { s.calls.Add(1); return errDown }

func breakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}
}

func TestResilient_PrimaryServes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary, fallback := NewMemStore(0), NewMemStore(0)
	s := NewResilient(breakerConfig(), nil,
		Target{Name: "primary", Store: primary},
		Target{Name: "memory", Store: fallback},
	)

	rec := endWordsRecord("day", "may")
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if primary.Len() != 1 || fallback.Len() != 0 {
		t.Errorf("primary = %d, fallback = %d, want 1 and 0", primary.Len(), fallback.Len())
	}
	if _, err := s.Get(ctx, rec.ID); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestResilient_FailsOverAndOpens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &downStore{}
	fallback := NewMemStore(0)
	s := NewResilient(breakerConfig(), nil,
		Target{Name: "postgres", Store: primary},
		Target{Name: "memory", Store: fallback},
	)

	var ids []string
	for range 4 {
		rec := scanRecord("line")
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	if fallback.Len() != 4 {
		t.Errorf("fallback holds %d records, want 4", fallback.Len())
	}
	if got := primary.calls.Load(); got != 2 {
		t.Errorf("primary called %d times, want 2 before its breaker opened", got)
	}
	if st := s.States()["postgres"]; st != resilience.StateOpen {
		t.Errorf("postgres breaker = %v, want open", st)
	}

	got, err := s.Get(ctx, ids[0])
	if err != nil || got.ID != ids[0] {
		t.Errorf("Get = %v, %v; want record from fallback", got, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping = %v, want nil while the fallback is up", err)
	}
}

func TestResilient_NotFoundDoesNotTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewResilient(resilience.BreakerConfig{MaxFailures: 1}, nil,
		Target{Name: "primary", Store: NewMemStore(0)},
		Target{Name: "memory", Store: NewMemStore(0)},
	)
	for range 3 {
		if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
			t.Fatalf("Get err = %v, want exactly ErrNotFound", err)
		}
	}
	for name, st := range s.States() {
		if st != resilience.StateClosed {
			t.Errorf("%s breaker = %v, want closed", name, st)
		}
	}
}

func TestResilient_InvalidRecord(t *testing.T) {
	t.Parallel()

	primary := &downStore{}
	s := NewResilient(breakerConfig(), nil, Target{Name: "postgres", Store: primary})
	if err := s.Save(context.Background(), &Record{Kind: "poem"}); err == nil {
		t.Fatal("Save accepted an invalid record")
	}
	if primary.calls.Load() != 0 {
		t.Error("invalid record reached the backend")
	}
}

func TestResilient_AllDownRecordsErrors(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	s := NewResilient(breakerConfig(), metrics, Target{Name: "postgres", Store: &downStore{}})
	err = s.Save(context.Background(), endWordsRecord("day"))
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, errDown) {
		t.Fatalf("Save err = %v, want ErrAllFailed wrapping the backend error", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var count int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "sonnet.archive.errors" {
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					count += dp.Value
				}
			}
		}
	}
	if count != 1 {
		t.Errorf("archive errors = %d, want 1", count)
	}
}
