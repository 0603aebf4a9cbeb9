package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mimir    MimirConfig    `mapstructure:"mimir"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type AuthConfig struct {
	// TriggerSecret signs the bearer tokens accepted by the cycle trigger.
	// An empty secret leaves the trigger open.
	TriggerSecret string `mapstructure:"trigger_secret"`
}

type EngineConfig struct {
	Region            string        `mapstructure:"region"`
	WorkerCount       int           `mapstructure:"worker_count"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	StatsWindowSize   int           `mapstructure:"stats_window_size"`
	StatsWindowPeriod time.Duration `mapstructure:"stats_window_period"`
	Schedule          string        `mapstructure:"schedule"`
	CycleTimeout      time.Duration `mapstructure:"cycle_timeout"`
}

type ProbeConfig struct {
	UserAgent    string `mapstructure:"user_agent"`
	Nameserver   string `mapstructure:"nameserver"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type AlertsConfig struct {
	DefaultChannel  string        `mapstructure:"default_channel"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	Burst           int           `mapstructure:"burst"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	TelegramAPIURL  string        `mapstructure:"telegram_api_url"`
}

type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type MimirConfig struct {
	URL           string        `mapstructure:"url"`
	TenantHeader  string        `mapstructure:"tenant_header"`
	DefaultTenant string        `mapstructure:"default_tenant"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	AuthToken     string        `mapstructure:"auth_token"`
}

func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("UPTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("MIMIR_URL"); url != "" {
		cfg.Mimir.URL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}
	if region := os.Getenv("CHECK_REGION"); region != "" {
		cfg.Engine.Region = region
	}
	if secret := os.Getenv("TRIGGER_SECRET"); secret != "" {
		cfg.Auth.TriggerSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("auth.trigger_secret", "")
	v.SetDefault("engine.region", "us-east-1")
	v.SetDefault("engine.worker_count", 10)
	v.SetDefault("engine.max_attempts", 3)
	v.SetDefault("engine.attempt_timeout", "30s")
	v.SetDefault("engine.retry_backoff", "0s")
	v.SetDefault("engine.stats_window_size", 100)
	v.SetDefault("engine.stats_window_period", "24h")
	v.SetDefault("engine.schedule", "@every 1m")
	v.SetDefault("engine.cycle_timeout", "10m")
	v.SetDefault("probe.user_agent", "UptimePulse/1.0 (Uptime Monitor)")
	v.SetDefault("probe.nameserver", "")
	v.SetDefault("probe.max_body_bytes", 5<<20)
	v.SetDefault("alerts.default_channel", "discord")
	v.SetDefault("alerts.rate_limit", 5)
	v.SetDefault("alerts.burst", 10)
	v.SetDefault("alerts.delivery_timeout", "10s")
	v.SetDefault("alerts.telegram_api_url", "https://api.telegram.org")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock_ttl", "15m")
	v.SetDefault("mimir.url", "")
	v.SetDefault("mimir.tenant_header", "X-Scope-OrgID")
	v.SetDefault("mimir.default_tenant", "uptime-pulse")
	v.SetDefault("mimir.batch_size", 1000)
	v.SetDefault("mimir.flush_interval", "10s")
	v.SetDefault("mimir.auth_token", "")
}

func (c *Config) Validate() error {
	if c.Engine.WorkerCount < 1 {
		return errors.New("engine.worker_count must be at least 1")
	}
	if c.Engine.MaxAttempts < 1 || c.Engine.MaxAttempts > 3 {
		return errors.New("engine.max_attempts must be between 1 and 3")
	}
	if c.Engine.AttemptTimeout <= 0 || c.Engine.AttemptTimeout > 30*time.Second {
		return errors.New("engine.attempt_timeout must be in (0s, 30s]")
	}
	if c.Engine.StatsWindowSize < 1 {
		return errors.New("engine.stats_window_size must be at least 1")
	}
	if c.Engine.StatsWindowPeriod <= 0 {
		return errors.New("engine.stats_window_period must be positive")
	}
	if c.Engine.Region == "" {
		return errors.New("engine.region is required")
	}
	if c.Redis.URL != "" {
		// The cycle lock must outlive the cycle it guards.
		if c.Engine.CycleTimeout <= 0 {
			return errors.New("engine.cycle_timeout must be positive when redis.url is set")
		}
		if c.Redis.LockTTL <= c.Engine.CycleTimeout {
			return errors.New("redis.lock_ttl must exceed engine.cycle_timeout")
		}
	}
	return nil
}
