package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ConfigurationError reports a configuration that fails validation and
// must abort process startup.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Validate checks if the configuration is valid.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateIndex(&cfg.Index); err != nil {
		return fmt.Errorf("index config: %w", err)
	}

	if err := validateFileCache(&cfg.FileCache); err != nil {
		return fmt.Errorf("filecache config: %w", err)
	}

	if err := validateUpstream(&cfg.Upstream); err != nil {
		return fmt.Errorf("upstream config: %w", err)
	}

	if err := validateRateLimit(&cfg.RateLimit); err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}

	if err := validateMetrics(&cfg.Metrics); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) error {
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", cfg.HTTPPort)
	}

	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be greater than 0")
	}
	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be greater than 0")
	}
	if cfg.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be greater than 0")
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return fmt.Errorf("max_header_bytes must be greater than 0")
	}

	return nil
}

// validateIndex validates the root and extra index configuration.
//
// The count of extra index URLs and extra TTLs must agree: each extra
// index needs exactly one TTL, and a mismatch is a startup-aborting
// configuration error rather than something this proxy can guess at.
func validateIndex(cfg *IndexConfig) error {
	if cfg.RootURL == "" {
		return &ConfigurationError{Reason: "index.root_url is required"}
	}
	if _, err := url.Parse(cfg.RootURL); err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("index.root_url is not a valid URL: %v", err)}
	}
	if cfg.RootTTL <= 0 {
		return &ConfigurationError{Reason: "index.root_ttl must be greater than 0"}
	}

	if len(cfg.ExtraURLs) != len(cfg.ExtraTTLs) {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"index.extra_urls has %d entries but index.extra_ttls has %d; each extra index needs exactly one TTL",
			len(cfg.ExtraURLs), len(cfg.ExtraTTLs))}
	}
	for i, u := range cfg.ExtraURLs {
		if u == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("index.extra_urls[%d] is empty", i)}
		}
		if _, err := url.Parse(u); err != nil {
			return &ConfigurationError{Reason: fmt.Sprintf("index.extra_urls[%d] is not a valid URL: %v", i, err)}
		}
	}
	for i, ttl := range cfg.ExtraTTLs {
		if ttl <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("index.extra_ttls[%d] must be greater than 0", i)}
		}
	}

	return nil
}

// validateFileCache validates the on-disk distribution-file cache
// configuration.
func validateFileCache(cfg *FileCacheConfig) error {
	if cfg.MaxBytes < 0 {
		return fmt.Errorf("filecache max_bytes cannot be negative")
	}
	if cfg.DownloadTimeout < 0 {
		return fmt.Errorf("filecache download_timeout cannot be negative")
	}
	return nil
}

// validateUpstream validates settings for talking to upstream indexes
// and file hosts.
func validateUpstream(cfg *UpstreamConfig) error {
	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("upstream connect_timeout must be greater than 0")
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("upstream read_timeout must be greater than 0")
	}
	if cfg.MaxIdleConns < 0 {
		return fmt.Errorf("upstream max_idle_conns cannot be negative")
	}
	if cfg.MaxIdleConnsPerHost < 0 {
		return fmt.Errorf("upstream max_idle_conns_per_host cannot be negative")
	}
	if cfg.MaxIdleConnsPerHost > cfg.MaxIdleConns && cfg.MaxIdleConns > 0 {
		return fmt.Errorf("upstream max_idle_conns_per_host cannot be greater than max_idle_conns")
	}
	return nil
}

// validateRateLimit validates rate limit configuration.
func validateRateLimit(cfg *RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be greater than 0")
	}
	if cfg.Burst < cfg.RequestsPerSecond {
		return fmt.Errorf("burst must be at least equal to requests_per_second")
	}
	if cfg.CleanupInterval <= 0 {
		return fmt.Errorf("rate limit cleanup_interval must be greater than 0")
	}
	if cfg.IdleTimeout <= 0 {
		return fmt.Errorf("rate limit idle_timeout must be greater than 0")
	}

	return nil
}

// validateMetrics validates metrics configuration.
func validateMetrics(cfg *MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Path == "" {
		return fmt.Errorf("metrics path cannot be empty")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}
	if cfg.Namespace == "" {
		return fmt.Errorf("metrics namespace cannot be empty")
	}

	return nil
}

// validateLogging validates logging configuration.
func validateLogging(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.Level) {
		return fmt.Errorf("log level must be one of %v, got %s", validLevels, cfg.Level)
	}

	validFormats := []string{"json", "console"}
	if !contains(validFormats, cfg.Format) {
		return fmt.Errorf("log format must be one of %v, got %s", validFormats, cfg.Format)
	}

	validOutputs := []string{"stdout", "stderr"}
	if !contains(validOutputs, cfg.Output) {
		return fmt.Errorf("log output must be one of %v, got %s", validOutputs, cfg.Output)
	}

	return nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
