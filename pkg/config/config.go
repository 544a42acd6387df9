package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Pool struct {
		Seeds           []string      `yaml:"seeds"`
		Purpose         string        `yaml:"purpose"`
		PickK           int           `yaml:"pick_k"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		CallTimeout     time.Duration `yaml:"call_timeout"`
		FailCooldown    time.Duration `yaml:"fail_cooldown"`
		MaxPool         int           `yaml:"max_pool"`
		Mix             float64       `yaml:"mix"`
	} `yaml:"pool"`

	Dispatch struct {
		Retries int `yaml:"retries"`
	} `yaml:"dispatch"`

	Signaling struct {
		PollTimeout    time.Duration `yaml:"poll_timeout"`
		PollBackoff    time.Duration `yaml:"poll_backoff"`
		SendsPerSecond float64       `yaml:"sends_per_second"`
		SendBurst      int           `yaml:"send_burst"`
	} `yaml:"signaling"`

	Snapshot struct {
		Backend string `yaml:"backend"` // file, redis or memory
		Path    string `yaml:"path"`
	} `yaml:"snapshot"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Status struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"status"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Auth struct {
		Token string `yaml:"token"`
	} `yaml:"auth"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Pool.PickK <= 0 {
		return fmt.Errorf("pool.pick_k must be > 0")
	}
	if c.Pool.RefreshInterval <= 0 {
		return fmt.Errorf("pool.refresh_interval must be > 0")
	}
	if c.Pool.CallTimeout <= 0 {
		return fmt.Errorf("pool.call_timeout must be > 0")
	}
	if c.Pool.FailCooldown <= 0 {
		return fmt.Errorf("pool.fail_cooldown must be > 0")
	}
	if c.Pool.MaxPool <= 0 {
		return fmt.Errorf("pool.max_pool must be > 0")
	}
	if c.Pool.Mix < 0 || c.Pool.Mix > 1 {
		return fmt.Errorf("pool.mix must be in [0, 1]")
	}

	if c.Dispatch.Retries < 0 {
		return fmt.Errorf("dispatch.retries must be >= 0")
	}

	if c.Signaling.PollTimeout <= 0 {
		return fmt.Errorf("signaling.poll_timeout must be > 0")
	}
	if c.Signaling.PollBackoff <= 0 {
		return fmt.Errorf("signaling.poll_backoff must be > 0")
	}
	if c.Signaling.SendsPerSecond <= 0 {
		return fmt.Errorf("signaling.sends_per_second must be > 0")
	}
	if c.Signaling.SendBurst <= 0 {
		return fmt.Errorf("signaling.send_burst must be > 0")
	}

	switch c.Snapshot.Backend {
	case "file":
		if c.Snapshot.Path == "" {
			return fmt.Errorf("snapshot.path must not be empty when snapshot.backend=file")
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when snapshot.backend=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when snapshot.backend=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("snapshot.backend must be one of file, redis, memory")
	}

	if c.Status.Enabled && c.Status.Address == "" {
		return fmt.Errorf("status.address must not be empty when status.enabled=true")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Pool.Purpose = "feed"
	cfg.Pool.PickK = 8
	cfg.Pool.RefreshInterval = 60 * time.Second
	cfg.Pool.CallTimeout = 8 * time.Second
	cfg.Pool.FailCooldown = 45 * time.Second
	cfg.Pool.MaxPool = 32
	cfg.Pool.Mix = 0.7

	cfg.Dispatch.Retries = 2

	cfg.Signaling.PollTimeout = 10 * time.Second
	cfg.Signaling.PollBackoff = 2 * time.Second
	cfg.Signaling.SendsPerSecond = 20
	cfg.Signaling.SendBurst = 40

	cfg.Snapshot.Backend = "file"
	cfg.Snapshot.Path = "mesh_snapshot.json"

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Status.Enabled = true
	cfg.Status.Address = ":8090"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("WEALLMESH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if seeds := os.Getenv("WEALLMESH_SEEDS"); seeds != "" {
		c.Pool.Seeds = splitCSV(seeds)
	}
	if purpose := os.Getenv("WEALLMESH_PURPOSE"); purpose != "" {
		c.Pool.Purpose = purpose
	}
	if addr := os.Getenv("WEALLMESH_STATUS_ADDRESS"); addr != "" {
		c.Status.Address = addr
	}
	if addr := os.Getenv("WEALLMESH_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if token := os.Getenv("WEALLMESH_TOKEN"); token != "" {
		c.Auth.Token = token
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
