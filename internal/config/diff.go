package config

import "maps"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged and NewLogLevel apply without restart.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MaxAttemptsChanged and NewMaxAttempts apply without restart.
	MaxAttemptsChanged bool
	NewMaxAttempts     int

	// RestartRequired lists changed keys that only take effect after a
	// restart, in a fixed order.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MaxAttemptsChanged || len(d.RestartRequired) > 0
}

// Diff compares two configs.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Generator.MaxAttempts != new.Generator.MaxAttempts {
		d.MaxAttemptsChanged = true
		d.NewMaxAttempts = new.Generator.MaxAttempts
	}

	restart := []struct {
		key     string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"dictionary.path", old.Dictionary.Path != new.Dictionary.Path},
		{"dictionary.aliases", !maps.Equal(old.Dictionary.Aliases, new.Dictionary.Aliases)},
		{"scansion", old.Scansion != new.Scansion},
		{"archive", old.Archive != new.Archive},
		{"discord", old.Discord != new.Discord},
		{"telemetry", old.Telemetry != new.Telemetry},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.key)
		}
	}
	return d
}
