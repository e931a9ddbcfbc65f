package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvProduction is the only environment that disables permissive CORS and
// detailed validation messages.
const EnvProduction = "production"

// Config is the root configuration for Beacon.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sync      SyncConfig      `mapstructure:"sync"`
}

// AppConfig is the immutable startup snapshot handed to every orchestrator
// step. It is passed by value.
type AppConfig struct {
	Env         string `mapstructure:"env"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Version     string `mapstructure:"version"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
}

// IsProduction reports whether the snapshot describes a production process.
func (a AppConfig) IsProduction() bool {
	return a.Env == EnvProduction
}

// Addr is the host:port pair the listener binds. IPv6 hosts are
// bracketed.
func (a AppConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// BaseURL is the advertised URL used in the startup banner.
func (a AppConfig) BaseURL() string {
	return "http://" + a.Addr()
}

type ServerConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
}

// SyncConfig controls the post-listen route reconciliation. A collaborator
// with an empty address is left out of the sync.
type SyncConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the BEACON_ prefix (e.g. BEACON_APP_PORT).
// A .env file in the working directory is loaded first when present; it
// never overrides variables already set in the process environment.
// The result is validated; an invalid snapshot yields *ValidationError.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("app.env", "BEACON_APP_ENV", "APP_ENV"); err != nil {
		return nil, fmt.Errorf("binding app.env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "arc-beacon")
	v.SetDefault("app.description", "A.R.C. Beacon API")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.host", "localhost")
	v.SetDefault("app.port", 3000)

	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "arc-beacon")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "json")

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.timeout", 30*time.Second)
	v.SetDefault("sync.breaker.max_failures", 3)
	v.SetDefault("sync.breaker.open_timeout", 30*time.Second)

	v.SetDefault("sync.postgres.host", "arc-oracle")
	v.SetDefault("sync.postgres.port", 5432)
	v.SetDefault("sync.postgres.user", "arc")
	v.SetDefault("sync.postgres.db", "arc_db")
	v.SetDefault("sync.postgres.ssl_mode", "disable")
	v.SetDefault("sync.postgres.max_conns", 4)

	v.SetDefault("sync.redis.host", "arc-sonic")
	v.SetDefault("sync.redis.port", 6379)
	v.SetDefault("sync.redis.db", 0)

	v.SetDefault("sync.nats.url", "nats://arc-flash:4222")
	v.SetDefault("sync.nats.subject", "beacon.routes.synced")
}
