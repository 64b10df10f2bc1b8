// Package config loads the process configuration from YAML and environment
// variables. Router callers read strategy and threshold once from here and
// pass them into route calls as values, so a live config reload never races
// an in-flight request.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Router    RouterConfig    `mapstructure:"router"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// RouterConfig is the routing policy surface.
type RouterConfig struct {
	Strategy            string  `mapstructure:"strategy"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	StaticCapability    float64 `mapstructure:"static_capability"`

	// UseMonitorCapability switches Auto's device signal from the static
	// constant to the monitor-derived estimate.
	UseMonitorCapability bool `mapstructure:"use_monitor_capability"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RemoteConfig configures the bundled OpenAI-compatible remote backend.
type RemoteConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond > 0 wraps the backend with a client-side limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	// MaxRetries > 1 wraps the backend with exponential-backoff retry on
	// transient failures.
	MaxRetries int `mapstructure:"max_retries"`

	// BreakerThreshold > 0 adds a circuit breaker that trips after that many
	// consecutive failures for BreakerCooldown.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

type TelemetryConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	WindowSize     int           `mapstructure:"window_size"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// Load reads config.yaml from configPath (or the working directory and
// /etc/infera when empty), applies defaults and environment overrides, and
// validates the result. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/infera")
	}

	setDefaults(v)

	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the router would refuse at call time.
func (c *Config) Validate() error {
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router.confidence_threshold %.2f out of [0,1]", c.Router.ConfidenceThreshold)
	}
	if c.Router.StaticCapability < 0 || c.Router.StaticCapability > 1 {
		return fmt.Errorf("router.static_capability %.2f out of [0,1]", c.Router.StaticCapability)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Router defaults
	v.SetDefault("router.strategy", "native-first")
	v.SetDefault("router.confidence_threshold", 0.85)
	v.SetDefault("router.static_capability", 0.7)
	v.SetDefault("router.use_monitor_capability", false)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown", "30s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Remote backend defaults
	v.SetDefault("remote.model", "gpt-4o-mini")
	v.SetDefault("remote.timeout", "60s")
	v.SetDefault("remote.requests_per_second", 0)
	v.SetDefault("remote.burst", 1)
	v.SetDefault("remote.max_retries", 1)
	v.SetDefault("remote.breaker_threshold", 0)
	v.SetDefault("remote.breaker_cooldown", "30s")

	// Telemetry defaults
	v.SetDefault("telemetry.queue_size", 1024)
	v.SetDefault("telemetry.window_size", 100)
	v.SetDefault("telemetry.stream_interval", "2s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Content-Type"})
	v.SetDefault("cors.max_age", 300)
}

func bindEnvVars(v *viper.Viper) {
	// Router
	_ = v.BindEnv("router.strategy", "INFERA_STRATEGY")
	_ = v.BindEnv("router.confidence_threshold", "INFERA_CONFIDENCE_THRESHOLD")
	_ = v.BindEnv("router.static_capability", "INFERA_STATIC_CAPABILITY")
	_ = v.BindEnv("router.use_monitor_capability", "INFERA_USE_MONITOR_CAPABILITY")

	// Server
	_ = v.BindEnv("server.port", "INFERA_PORT")

	// Redis
	_ = v.BindEnv("redis.enabled", "INFERA_REDIS_ENABLED")
	_ = v.BindEnv("redis.url", "INFERA_REDIS_URL")
	_ = v.BindEnv("redis.password", "INFERA_REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "INFERA_REDIS_DB")

	// Remote backend
	_ = v.BindEnv("remote.api_key", "INFERA_REMOTE_API_KEY")
	_ = v.BindEnv("remote.base_url", "INFERA_REMOTE_BASE_URL")
	_ = v.BindEnv("remote.model", "INFERA_REMOTE_MODEL")

	// Logging
	_ = v.BindEnv("logging.level", "INFERA_LOG_LEVEL")
	_ = v.BindEnv("logging.format", "INFERA_LOG_FORMAT")
}
