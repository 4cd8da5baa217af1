package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/buildplan/buildplan/internal/logging"
)

// EnvPrefix is the prefix for environment overrides, e.g. BUILDPLAN_SERVER_PORT
const EnvPrefix = "BUILDPLAN"

// Rate limiter backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the buildplan configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// AuthConfig represents token configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

// RateLimitConfig represents the authentication attempt limiter configuration.
// It is read once at startup.
type RateLimitConfig struct {
	Backend         string        `mapstructure:"backend"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Window          time.Duration `mapstructure:"window"`
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`
	BucketSize      time.Duration `mapstructure:"bucket_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Shards          int           `mapstructure:"shards"`
	ProtectedPaths  []string      `mapstructure:"protected_paths"`
	FailOpen        bool          `mapstructure:"fail_open"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// RedisConfig represents the Redis connection used by the redis backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig represents the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ProfilingConfig represents the pprof listener. It is kept off the API
// address.
type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Path          string `mapstructure:"path"`
	BlockRate     int    `mapstructure:"block_rate"`
	MutexFraction int    `mapstructure:"mutex_fraction"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "buildplan")

	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.max_attempts", 5)
	v.SetDefault("ratelimit.window", 15*time.Minute)
	v.SetDefault("ratelimit.lockout_duration", 30*time.Minute)
	v.SetDefault("ratelimit.bucket_size", time.Minute)
	v.SetDefault("ratelimit.cleanup_interval", 5*time.Minute)
	v.SetDefault("ratelimit.shards", 32)
	v.SetDefault("ratelimit.protected_paths", []string{"/api/auth/login", "/api/auth/register"})
	v.SetDefault("ratelimit.fail_open", true)
	v.SetDefault("ratelimit.redis.addr", "localhost:6379")
	v.SetDefault("ratelimit.redis.password", "")
	v.SetDefault("ratelimit.redis.db", 0)
	v.SetDefault("ratelimit.redis.prefix", "buildplan:auth:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatJSON)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.addr", "localhost:6060")
	v.SetDefault("profiling.path", "/debug/pprof")
	v.SetDefault("profiling.block_rate", 0)
	v.SetDefault("profiling.mutex_fraction", 0)
}

// Load reads buildplan.yaml from the working directory, or the file at path
// when path is non-empty, then applies BUILDPLAN_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("buildplan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// RequireServe checks the settings that only the API server needs
func (c *Config) RequireServe() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required (set BUILDPLAN_DATABASE_URL)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters (set BUILDPLAN_AUTH_JWT_SECRET)")
	}
	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port)
	}
	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got: %s", cfg.Auth.TokenTTL)
	}

	rl := cfg.RateLimit
	switch rl.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("ratelimit.backend must be %q or %q, got: %s", BackendMemory, BackendRedis, rl.Backend)
	}
	if rl.MaxAttempts <= 0 {
		return fmt.Errorf("ratelimit.max_attempts must be positive, got: %d", rl.MaxAttempts)
	}
	if rl.Window <= 0 || rl.LockoutDuration <= 0 {
		return errors.New("ratelimit.window and ratelimit.lockout_duration must be positive")
	}
	if rl.BucketSize < 0 || rl.BucketSize > rl.Window {
		return fmt.Errorf("ratelimit.bucket_size must be between 0 and the window, got: %s", rl.BucketSize)
	}
	for _, p := range rl.ProtectedPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("ratelimit.protected_paths entries must start with '/', got: %s", p)
		}
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.Format != logging.FormatJSON && cfg.Log.Format != logging.FormatConsole {
		return fmt.Errorf("log.format must be %q or %q, got: %s", logging.FormatJSON, logging.FormatConsole, cfg.Log.Format)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got: %s", cfg.Metrics.Path)
	}
	if p := cfg.Profiling; p.Enabled {
		if p.Addr == "" || p.Addr == cfg.Server.Address() {
			return errors.New("profiling.addr must be set and differ from the server address")
		}
		if !strings.HasPrefix(p.Path, "/") {
			return fmt.Errorf("profiling.path must start with '/', got: %s", p.Path)
		}
	}
	return nil
}
