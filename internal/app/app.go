// Package app wires the verse service's subsystems into a running
// application.
//
// The App struct owns the full lifecycle: New loads the dictionary and
// builds every component, Run serves HTTP (and the Discord bot when
// configured), and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithDictionary,
// WithArchive, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/bedwards/sonnet/internal/api"
	"github.com/bedwards/sonnet/internal/archive"
	"github.com/bedwards/sonnet/internal/config"
	"github.com/bedwards/sonnet/internal/discord"
	"github.com/bedwards/sonnet/internal/discord/commands"
	"github.com/bedwards/sonnet/internal/generator"
	"github.com/bedwards/sonnet/internal/health"
	"github.com/bedwards/sonnet/internal/mcp"
	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/phonetic"
	"github.com/bedwards/sonnet/internal/resilience"
	"github.com/bedwards/sonnet/internal/scansion"
	"github.com/bedwards/sonnet/pkg/cmudict"
)

// Version is reported by the MCP server and telemetry.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	dict      *cmudict.Dictionary
	metrics   *observe.Metrics
	generator *generator.Generator
	pipeline  *scansion.Pipeline
	suggester *phonetic.Suggester
	archive   archive.Store
	api       *api.Server
	mcp       *mcpsdk.Server
	bot       *discord.Bot

	logLevel *slog.LevelVar
	rng      *rand.Rand

	mu     sync.Mutex
	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDictionary injects a dictionary instead of loading dictionary.path.
func WithDictionary(d *cmudict.Dictionary) Option {
	return func(a *App) { a.dict = d }
}

// WithArchive injects an archive store instead of creating one from config.
func WithArchive(s archive.Store) Option {
	return func(a *App) { a.archive = s }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithRand seeds the end-word generator.
func WithRand(r *rand.Rand) Option {
	return func(a *App) { a.rng = r }
}

// WithDiscordBot injects a connected bot instead of dialing Discord when
// discord.token is set.
func WithDiscordBot(b *discord.Bot) Option {
	return func(a *App) { a.bot = b }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already
// have defaults applied and be valid.
//
// New performs all initialisation synchronously: dictionary loading,
// archive connection and migration, and Discord login.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Dictionary ────────────────────────────────────────────────────
	if err := a.initDictionary(); err != nil {
		return nil, fmt.Errorf("app: init dictionary: %w", err)
	}

	// ── 2. Analysis ──────────────────────────────────────────────────────
	a.initAnalysis()

	// ── 3. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 4. Hosts ─────────────────────────────────────────────────────────
	apiOpts := []api.Option{api.WithArchive(a.archive), api.WithMetrics(a.metrics)}
	if a.suggester != nil {
		apiOpts = append(apiOpts, api.WithSuggester(a.suggester, cfg.Scansion.Suggestions))
	}
	a.api = api.New(a.dict, a.pipeline, a.generator, apiOpts...)

	a.mcp = mcp.NewServer(mcp.Config{
		Name:       cfg.MCP.Name,
		Version:    a.mcpVersion(),
		Dictionary: a.dict,
		Pipeline:   a.pipeline,
		Generator:  a.generator,
		Metrics:    a.metrics,
	})

	// ── 5. Discord (optional) ────────────────────────────────────────────
	if err := a.initDiscord(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init discord: %w", err)
	}

	return a, nil
}

func (a *App) initDictionary() error {
	if a.dict != nil {
		return nil
	}
	d, err := cmudict.LoadFile(a.cfg.Dictionary.Path, cmudict.WithAliases(a.cfg.Dictionary.Aliases))
	if err != nil {
		return err
	}
	slog.Info("dictionary loaded", "path", a.cfg.Dictionary.Path, "stats", d.Stats())
	a.dict = d
	return nil
}

// initAnalysis builds the generator, suggester and scansion pipeline.
func (a *App) initAnalysis() {
	genOpts := []generator.Option{
		generator.WithMaxAttempts(a.cfg.Generator.MaxAttempts),
		generator.WithMetrics(a.metrics),
	}
	if a.rng != nil {
		genOpts = append(genOpts, generator.WithRand(a.rng))
	}
	a.generator = generator.New(a.dict, genOpts...)

	pipeOpts := []scansion.Option{
		scansion.WithMaxLines(a.cfg.Scansion.MaxLines),
		scansion.WithWorkers(a.cfg.Scansion.Workers),
		scansion.WithMetrics(a.metrics),
	}
	if n := a.cfg.Scansion.Suggestions; n > 0 {
		a.suggester = phonetic.New(a.dict.Words())
		pipeOpts = append(pipeOpts, scansion.WithSuggester(a.suggester, n))
	}
	a.pipeline = scansion.New(a.dict, pipeOpts...)
}

// initArchive puts the in-memory store behind PostgreSQL when a DSN is
// configured, and uses it alone otherwise.
func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil
	}
	ac := a.cfg.Archive
	mem := archive.NewMemStore(ac.MemCapacity)
	if ac.PostgresDSN == "" {
		a.archive = mem
		slog.Info("archive ready", "backend", "memory", "capacity", ac.MemCapacity)
		return nil
	}

	pg, err := archive.Open(ctx, ac.PostgresDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})

	a.archive = archive.NewResilient(resilience.BreakerConfig{
		Name:         "archive",
		MaxFailures:  ac.MaxFailures,
		ResetTimeout: ac.ResetTimeout,
	}, a.metrics,
		archive.Target{Name: "postgres", Store: pg},
		archive.Target{Name: "memory", Store: mem},
	)
	slog.Info("archive ready", "backend", "postgres", "fallback", "memory")
	return nil
}

func (a *App) initDiscord(ctx context.Context) error {
	if a.bot == nil {
		if a.cfg.Discord.Token == "" {
			return nil
		}
		bot, err := discord.New(ctx, discord.Config{
			Token:   a.cfg.Discord.Token,
			GuildID: a.cfg.Discord.GuildID,
		})
		if err != nil {
			return err
		}
		a.bot = bot
		slog.Info("discord bot connected", "guild_id", a.cfg.Discord.GuildID)
	}
	a.closers = append([]func() error{a.bot.Close}, a.closers...)

	commands.New(commands.Config{
		Pipeline:  a.pipeline,
		Generator: a.generator,
		Archive:   a.archive,
		Metrics:   a.metrics,
	}).Register(a.bot.Router())
	return nil
}

func (a *App) mcpVersion() string {
	if a.cfg.MCP.Version != "" {
		return a.cfg.MCP.Version
	}
	return Version
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Dictionary returns the loaded dictionary.
func (a *App) Dictionary() *cmudict.Dictionary { return a.dict }

// Generator returns the end-word generator.
func (a *App) Generator() *generator.Generator { return a.generator }

// MCPServer returns the MCP tool server, for serving over stdio.
func (a *App) MCPServer() *mcpsdk.Server { return a.mcp }

// Handler returns the full HTTP surface: the /v1 API, health probes, the
// MCP endpoint and, when enabled, Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.api.Register(mux)

	checks := []health.Checker{
		{Name: "dictionary", Check: func(context.Context) error {
			if a.dict.Len() == 0 {
				return errors.New("dictionary is empty")
			}
			return nil
		}},
		health.PingCheck("archive", a.archive, true),
	}
	health.New(checks...).Register(mux)

	mux.Handle("/mcp", mcp.HTTPHandler(a.mcp))
	if a.cfg.Telemetry.Prometheus {
		mux.Handle("GET /metrics", observe.MetricsHandler())
	}
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on server.listen_addr, and runs the Discord bot when one
// is connected, until ctx is cancelled. A cancelled ctx is a clean exit.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     a.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if a.bot != nil {
		g.Go(func() error {
			if err := a.bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: discord: %w", err)
			}
			return nil
		})
	}

	slog.Info("app running", "discord", a.bot != nil)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ServeStdio serves the MCP tools over stdin/stdout until ctx is cancelled.
func (a *App) ServeStdio(ctx context.Context) error {
	return mcp.Serve(ctx, a.mcp)
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new
// and logs the keys that need a restart. It is shaped as a
// [config.NewWatcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}
	if d.MaxAttemptsChanged {
		a.generator.SetMaxAttempts(d.NewMaxAttempts)
		slog.Info("config: generator max attempts changed", "max_attempts", d.NewMaxAttempts)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes need a restart", "keys", d.RestartRequired)
	}
}

// SlogLevel converts a config log level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases what New acquired before it failed.
func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
}
