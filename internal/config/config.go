// Package config loads service configuration from an optional YAML file
// with environment overrides for deployment secrets.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type RateLimitConfig struct {
	PerMinute int    `yaml:"per_minute"`
	PerHour   int    `yaml:"per_hour"`
	Backend   string `yaml:"backend"` // "memory" or "redis"
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type JobsConfig struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	RetainTerminal time.Duration `yaml:"retain_terminal"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type WebhookConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Workers        int           `yaml:"workers"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
}

type RendererConfig struct {
	Mode      string `yaml:"mode"` // "http" or "docker"
	EngineURL string `yaml:"engine_url"`
	Image     string `yaml:"image"`
	Network   string `yaml:"network"`
	PoolSize  int    `yaml:"pool_size"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "minio"
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// APIKeys are SHA-256 hex digests of accepted credentials.
	APIKeys   []string        `yaml:"api_keys"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		RateLimit: RateLimitConfig{
			PerMinute: 10,
			PerHour:   60,
			Backend:   "memory",
		},
		Cache: CacheConfig{
			TTL:           24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Jobs: JobsConfig{
			Workers:        4,
			QueueSize:      256,
			CaptureTimeout: 60 * time.Second,
			RetainTerminal: 48 * time.Hour,
			SweepInterval:  time.Hour,
		},
		Webhook: WebhookConfig{
			MaxAttempts:    3,
			AttemptTimeout: 10 * time.Second,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
			Workers:        4,
			RatePerSecond:  50,
		},
		Renderer: RendererConfig{
			Mode:      "http",
			EngineURL: "http://localhost:8082",
			Image:     "snapgate/render-engine:latest",
			PoolSize:  2,
		},
		Storage: StorageConfig{
			Backend:  "memory",
			Endpoint: "localhost:9000",
			Bucket:   "snapgate",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads flags, the optional config file, and env overrides.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("snapgate", flag.ContinueOnError)
	path := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *path != "" {
		data, err := os.ReadFile(*path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-specific settings so containers can be
// configured without a mounted file.
func (c *Config) applyEnv() {
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.Storage.Endpoint = getEnv("MINIO_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("MINIO_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Bucket = getEnv("MINIO_BUCKET", c.Storage.Bucket)
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		c.Storage.UseSSL = v == "true"
	}
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	c.Renderer.EngineURL = getEnv("ENGINE_URL", c.Renderer.EngineURL)
	c.Renderer.Network = getEnv("DOCKER_NETWORK", c.Renderer.Network)
}

func (c Config) Validate() error {
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.PerHour <= 0 {
		return errors.New("rate_limit windows must be positive")
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		return errors.New("rate_limit.backend must be memory or redis")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if c.Renderer.Mode != "http" && c.Renderer.Mode != "docker" {
		return errors.New("renderer.mode must be http or docker")
	}
	if c.Storage.Backend != "memory" && c.Storage.Backend != "minio" {
		return errors.New("storage.backend must be memory or minio")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
