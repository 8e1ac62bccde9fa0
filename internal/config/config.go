// Package config loads and validates the proxy's static start-up
// configuration from a file, environment variables, and built-in
// defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Index     IndexConfig     `mapstructure:"index"`
	FileCache FileCacheConfig `mapstructure:"filecache"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains the HTTP listener's settings.
type ServerConfig struct {
	HTTPPort               int           `mapstructure:"http_port"`
	BasePath               string        `mapstructure:"base_path"`
	ReadTimeout            time.Duration `mapstructure:"read_timeout"`
	WriteTimeout           time.Duration `mapstructure:"write_timeout"`
	IdleTimeout            time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes         int           `mapstructure:"max_header_bytes"`
	ShutdownTimeout        time.Duration `mapstructure:"shutdown_timeout"`
	EnableGracefulShutdown bool          `mapstructure:"enable_graceful_shutdown"`
}

// IndexConfig describes the root index and any extra indexes this
// proxy aggregates over.
type IndexConfig struct {
	RootURL   string          `mapstructure:"root_url"`
	RootTTL   time.Duration   `mapstructure:"root_ttl"`
	ExtraURLs []string        `mapstructure:"extra_urls"`
	ExtraTTLs []time.Duration `mapstructure:"extra_ttls"`
}

// FileCacheConfig controls the on-disk distribution-file cache.
type FileCacheConfig struct {
	MaxBytes        int64         `mapstructure:"max_bytes"`
	CacheDir        string        `mapstructure:"cache_dir"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	BinaryMIMEType  bool          `mapstructure:"binary_mime_type"`
}

// UpstreamConfig controls how this proxy talks to upstream indexes
// and file hosts.
type UpstreamConfig struct {
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout            time.Duration `mapstructure:"read_timeout"`
	DisableSSLVerification bool          `mapstructure:"disable_ssl_verification"`
	MaxIdleConns           int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost    int           `mapstructure:"max_idle_conns_per_host"`
}

// RateLimitConfig protects upstream indexes from being overwhelmed by
// bursts of client requests this proxy forwards.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // "json", "console"
	Output string `mapstructure:"output"` // "stdout", "stderr"
}

// Load reads configuration from built-in defaults, a file, and
// environment variables (in increasing priority), then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PYPICACHE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 5000)
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.enable_graceful_shutdown", true)

	v.SetDefault("index.root_url", "https://pypi.org/simple/")
	v.SetDefault("index.root_ttl", 1800*time.Second)
	v.SetDefault("index.extra_urls", []string{})
	v.SetDefault("index.extra_ttls", []string{})

	v.SetDefault("filecache.max_bytes", int64(5)*1024*1024*1024)
	v.SetDefault("filecache.cache_dir", "")
	v.SetDefault("filecache.download_timeout", 900*time.Millisecond)
	v.SetDefault("filecache.binary_mime_type", false)

	v.SetDefault("upstream.connect_timeout", 10*time.Second)
	v.SetDefault("upstream.read_timeout", 30*time.Second)
	v.SetDefault("upstream.disable_ssl_verification", false)
	v.SetDefault("upstream.max_idle_conns", 100)
	v.SetDefault("upstream.max_idle_conns_per_host", 10)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 100)
	v.SetDefault("ratelimit.burst", 200)
	v.SetDefault("ratelimit.cleanup_interval", 5*time.Minute)
	v.SetDefault("ratelimit.idle_timeout", 30*time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "pypi_cache_proxy")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}
