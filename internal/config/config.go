// Package config loads the server configuration: built-in defaults, an
// optional YAML file, then VIBECHECK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/breaker"
	"github.com/HendryAvila/vibe-check/internal/degradation"
	"github.com/HendryAvila/vibe-check/internal/ghclient"
	"github.com/HendryAvila/vibe-check/internal/health"
	"github.com/HendryAvila/vibe-check/internal/jobstore"
	"github.com/HendryAvila/vibe-check/internal/logging"
	"github.com/HendryAvila/vibe-check/internal/mentor"
	"github.com/HendryAvila/vibe-check/internal/monitor"
	"github.com/HendryAvila/vibe-check/internal/routing"
	"github.com/HendryAvila/vibe-check/internal/sampling"
	"github.com/HendryAvila/vibe-check/internal/telemetry"
)

// Config holds all configuration for the Vibe Check server.
type Config struct {
	Log         logging.Config        `yaml:"log"`
	Router      routing.Config        `yaml:"router"`
	Cache       CacheConfig           `yaml:"cache"`
	Breaker     breaker.Config        `yaml:"breaker"`
	Sampling    sampling.Config       `yaml:"sampling"`
	Telemetry   telemetry.Config      `yaml:"telemetry"`
	Mentor      mentor.Config         `yaml:"mentor"`
	Queue       analysis.QueueConfig  `yaml:"queue"`
	Workers     analysis.WorkerConfig `yaml:"workers"`
	Resources   ResourcesConfig       `yaml:"resources"`
	Degradation degradation.Config    `yaml:"degradation"`
	Health      health.Config         `yaml:"health"`
	GitHub      ghclient.Config       `yaml:"github"`
	Redis       RedisConfig           `yaml:"redis"`
	Store       jobstore.Config       `yaml:"store"`
	Admin       AdminConfig           `yaml:"admin"`
}

// CacheConfig sizes the dynamic response cache.
type CacheConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// ResourcesConfig configures the resource monitor.
type ResourcesConfig struct {
	Limits   monitor.Limits `yaml:"limits"`
	Interval time.Duration  `yaml:"interval"`
	DiskPath string         `yaml:"disk_path"`
}

// RedisConfig enables the job status mirror when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AdminConfig enables the admin HTTP server when Addr is set.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:         logging.DefaultConfig(),
		Router:      routing.DefaultConfig(),
		Cache:       CacheConfig{MaxSize: 1000, TTL: time.Hour},
		Breaker:     breaker.DefaultConfig(),
		Sampling:    sampling.DefaultConfig(),
		Telemetry:   telemetry.Config{WindowSize: telemetry.DefaultWindowSize},
		Mentor:      mentor.DefaultConfig(),
		Queue:       analysis.DefaultQueueConfig(),
		Workers:     analysis.DefaultWorkerConfig(),
		Resources:   ResourcesConfig{Limits: monitor.DefaultLimits(), Interval: 30 * time.Second, DiskPath: "/"},
		Degradation: degradation.DefaultConfig(),
		Health:      health.DefaultConfig(),
		GitHub:      ghclient.DefaultConfig(),
		Store:       jobstore.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.Health.ExpectedWorkers = cfg.Workers.MaxConcurrentWorkers
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = envString("VIBECHECK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("VIBECHECK_LOG_FORMAT", c.Log.Format)

	c.Router.Threshold = envFloat("VIBECHECK_ROUTER_THRESHOLD", c.Router.Threshold)
	c.Cache.MaxSize = envInt("VIBECHECK_CACHE_SIZE", c.Cache.MaxSize)
	c.Cache.TTL = envDuration("VIBECHECK_CACHE_TTL", c.Cache.TTL)
	c.Sampling.Timeout = envDuration("VIBECHECK_SAMPLING_TIMEOUT", c.Sampling.Timeout)
	c.Sampling.ModelHint = envString("VIBECHECK_MODEL_HINT", c.Sampling.ModelHint)

	c.Queue.MaxQueueSize = envInt("VIBECHECK_MAX_QUEUE_SIZE", c.Queue.MaxQueueSize)
	c.Workers.MaxConcurrentWorkers = envInt("VIBECHECK_MAX_WORKERS", c.Workers.MaxConcurrentWorkers)
	c.Resources.Limits.MaxConcurrentJobs = envInt("VIBECHECK_MAX_CONCURRENT_JOBS", c.Resources.Limits.MaxConcurrentJobs)

	c.GitHub.Token = envString("VIBECHECK_GITHUB_TOKEN", envString("GITHUB_TOKEN", c.GitHub.Token))
	c.GitHub.BaseURL = envString("VIBECHECK_GITHUB_URL", c.GitHub.BaseURL)
	c.Redis.URL = envString("VIBECHECK_REDIS_URL", c.Redis.URL)
	c.Store.DataDir = envString("VIBECHECK_DATA_DIR", c.Store.DataDir)
	c.Admin.Addr = envString("VIBECHECK_ADMIN_ADDR", c.Admin.Addr)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Router.Threshold < 0 || c.Router.Threshold > 1 {
		errs = append(errs, fmt.Errorf("router.threshold must be in [0,1], got %v", c.Router.Threshold))
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	if c.Sampling.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sampling.timeout must be positive, got %s", c.Sampling.Timeout))
	}
	if c.Sampling.Temperature < 0 || c.Sampling.Temperature > 1 {
		errs = append(errs, fmt.Errorf("sampling.temperature must be in [0,1], got %v", c.Sampling.Temperature))
	}
	if c.Queue.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue.max_queue_size must be positive, got %d", c.Queue.MaxQueueSize))
	}
	if c.Workers.MaxConcurrentWorkers <= 0 {
		errs = append(errs, fmt.Errorf("workers.max_concurrent_workers must be positive, got %d", c.Workers.MaxConcurrentWorkers))
	}
	if c.Resources.Limits.MaxConcurrentJobs <= 0 {
		errs = append(errs, fmt.Errorf("resources.limits.max_concurrent_jobs must be positive, got %d", c.Resources.Limits.MaxConcurrentJobs))
	}
	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		errs = append(errs, fmt.Errorf("redis.url must start with redis:// or rediss://, got %q", c.Redis.URL))
	}
	if c.GitHub.BaseURL != "" && !strings.HasPrefix(c.GitHub.BaseURL, "http://") && !strings.HasPrefix(c.GitHub.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("github.base_url must start with http:// or https://, got %q", c.GitHub.BaseURL))
	}
	if _, err := logging.ParseLevel(c.Log.Level); c.Log.Level != "" && err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
