package config

import "time"

// ApplyDefaults fills in zero-valued fields with relo's defaults.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyNetworkDefaults(&cfg.Network)
	applyWatcherDefaults(&cfg.Watcher)
	applyBuildDefaults(&cfg.Build)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyNetworkDefaults(cfg *NetworkConfig) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == "" {
		cfg.Port = "49152"
	}
}

func applyWatcherDefaults(cfg *WatcherConfig) {
	if cfg.Kind == "" {
		cfg.Kind = "poll"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
}

func applyBuildDefaults(cfg *BuildConfig) {
	if cfg.Profile == "" {
		cfg.Profile = "debug"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Addr left empty means the metrics server stays disabled; no default port
	// is assigned so opting in always requires an explicit address.
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
