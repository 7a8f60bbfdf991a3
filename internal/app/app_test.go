package app_test

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/bedwards/sonnet/internal/app"
	"github.com/bedwards/sonnet/internal/archive"
	"github.com/bedwards/sonnet/internal/config"
	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/versetest"
)

// testConfig returns a defaulted config for tests.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr:      "127.0.0.1:0",
			ShutdownTimeout: 2 * time.Second,
		},
		Dictionary: config.DictionaryConfig{Path: "unused.dict"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithDictionary(versetest.Dictionary(t)),
		app.WithMetrics(testMetrics(t)),
	}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return a
}

func TestNew_WithInjectedDictionary(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	if got := a.Generator().MaxAttempts(); got != config.DefaultMaxAttempts {
		t.Errorf("MaxAttempts() = %d, want %d", got, config.DefaultMaxAttempts)
	}
	if a.MCPServer() == nil {
		t.Error("MCPServer() is nil")
	}
}

func TestNew_LoadsDictionaryFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cmudict.dict")
	if err := os.WriteFile(path, []byte(versetest.Corpus), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Dictionary.Path = path

	a, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if _, ok := a.Dictionary().Lookup("temperate"); !ok {
		t.Error("loaded dictionary is missing temperate")
	}
}

func TestNew_MissingDictionary(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Dictionary.Path = filepath.Join(t.TempDir(), "missing.dict")
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() with a missing dictionary should fail")
	}
}

func TestApp_Handler(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), app.WithArchive(archive.NewMemStore(4)))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/v1/lookup/day", http.StatusOK},
		{"/v1/lookup/zzyzx", http.StatusNotFound},
		{"/v1/scans", http.StatusOK},
		{"/metrics", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	old := testConfig()
	a := newTestApp(t, old, app.WithLevelVar(lv))

	updated := *old
	updated.Server.LogLevel = config.LogDebug
	updated.Generator.MaxAttempts = 42
	a.ApplyConfig(old, &updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	if got := a.Generator().MaxAttempts(); got != 42 {
		t.Errorf("MaxAttempts() = %d, want 42", got)
	}
}

func TestApp_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Serve(ctx, ln)
	}()

	url := "http://" + ln.Addr().String() + "/healthz"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
