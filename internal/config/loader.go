package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path and returns a defaulted, validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	if cfg.Dictionary.Path == "" {
		errs = append(errs, errors.New("dictionary.path is required"))
	}
	for k, v := range cfg.Dictionary.Aliases {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("dictionary.aliases: empty alias %q -> %q", k, v))
		}
	}

	if cfg.Generator.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("generator.max_attempts %d must be at least 1", cfg.Generator.MaxAttempts))
	}

	if cfg.Scansion.MaxLines < 1 {
		errs = append(errs, fmt.Errorf("scansion.max_lines %d must be at least 1", cfg.Scansion.MaxLines))
	}
	if cfg.Scansion.Suggestions < -1 {
		errs = append(errs, fmt.Errorf("scansion.suggestions %d is invalid; use -1 to disable", cfg.Scansion.Suggestions))
	}
	if cfg.Scansion.Workers < 0 {
		errs = append(errs, fmt.Errorf("scansion.workers %d must not be negative", cfg.Scansion.Workers))
	}

	if cfg.Archive.MemCapacity < 1 {
		errs = append(errs, fmt.Errorf("archive.mem_capacity %d must be at least 1", cfg.Archive.MemCapacity))
	}
	if cfg.Archive.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("archive.max_failures %d must not be negative", cfg.Archive.MaxFailures))
	}
	if cfg.Archive.PostgresDSN == "" {
		slog.Info("archive.postgres_dsn is empty; scans are archived in memory only")
	}

	if cfg.Discord.GuildID != "" && cfg.Discord.Token == "" {
		slog.Warn("discord.guild_id is set but discord.token is empty; the bot stays disabled")
	}

	return errors.Join(errs...)
}
