package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PolicyChanged is true if any timing, threshold or decay factor changed.
	// New values take effect from the next question.
	PolicyChanged bool
	NewPolicy     PolicyConfig

	// RestartRequired lists fields that changed but only apply after a
	// restart (backend URLs, providers, media sources).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Policy != new.Policy {
		d.PolicyChanged = true
		d.NewPolicy = new.Policy
	}

	if old.Backend != new.Backend {
		d.RestartRequired = append(d.RestartRequired, "backend")
	}
	if old.Media != new.Media {
		d.RestartRequired = append(d.RestartRequired, "media")
	}
	if !sameEntry(old.Providers.Media, new.Providers.Media) ||
		!sameEntry(old.Providers.VAD, new.Providers.VAD) ||
		!sameEntry(old.Providers.Face, new.Providers.Face) ||
		!sameEntry(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Interview != new.Interview {
		d.RestartRequired = append(d.RestartRequired, "interview")
	}

	return d
}

// sameEntry compares the scalar fields of two provider entries. Options are
// not compared.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Timeout == b.Timeout
}
