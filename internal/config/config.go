// Package config provides Viper-based configuration loading for the zone
// server and gateway processes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds process identity and clustering settings.
type ServerConfig struct {
	// ID uniquely identifies this process in the cluster registry.
	// Empty means a random UUID is assigned at startup.
	ID string `mapstructure:"id"`
	// Mode is the process role: "zone", "gateway", or "standalone".
	Mode string `mapstructure:"mode"`
	// Host is the externally reachable address advertised in zone assignments.
	Host string `mapstructure:"host"`
	// AssignedZones lists the zone IDs this server owns. Empty means all
	// zones found in the store.
	AssignedZones []string `mapstructure:"assigned_zones"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// BusConfig holds Redis message bus settings.
type BusConfig struct {
	// URL is the Redis connection URL (redis://host:port/db).
	URL string `mapstructure:"url"`
	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// GatewayConfig holds the client-facing WebSocket listener settings.
type GatewayConfig struct {
	// Host is the bind address for the WebSocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the WebSocket listener.
	Port int `mapstructure:"port"`
	// ReadLimit is the maximum inbound message size in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
	// PongWait is the duration without a pong before the socket is dropped.
	PongWait time.Duration `mapstructure:"pong_wait"`
	// TokenSecret signs session tokens returned from authentication.
	TokenSecret string `mapstructure:"token_secret"`
	// TokenTTL bounds session token validity.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// SimulationConfig holds tick-loop settings for the zone server.
type SimulationConfig struct {
	// TickRate is the fixed update rate in Hz.
	TickRate int `mapstructure:"tick_rate"`
}

// TickInterval returns the duration between ticks.
//
// Precondition: TickRate must be > 0.
func (s SimulationConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus debug listener settings.
type MetricsConfig struct {
	// Enabled controls whether the metrics listener starts.
	Enabled bool `mapstructure:"enabled"`
	// Addr is the "host:port" bind address for /metrics.
	Addr string `mapstructure:"addr"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Bus        BusConfig        `mapstructure:"bus"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBus(c.Bus); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGateway(c.Gateway); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	validModes := map[string]bool{"zone": true, "gateway": true, "standalone": true}
	if !validModes[s.Mode] {
		return fmt.Errorf("server.mode must be one of [zone, gateway, standalone], got %q", s.Mode)
	}
	if s.Host == "" {
		return errors.New("server.host must not be empty")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBus(b BusConfig) error {
	if b.URL == "" {
		return errors.New("bus.url must not be empty")
	}
	if !strings.HasPrefix(b.URL, "redis://") && !strings.HasPrefix(b.URL, "rediss://") {
		return fmt.Errorf("bus.url must be a redis:// or rediss:// URL, got %q", b.URL)
	}
	return nil
}

func validateGateway(g GatewayConfig) error {
	var errs []string
	if g.Port < 1 || g.Port > 65535 {
		errs = append(errs, fmt.Sprintf("gateway.port must be 1-65535, got %d", g.Port))
	}
	if g.ReadLimit < 1 {
		errs = append(errs, fmt.Sprintf("gateway.read_limit must be >= 1, got %d", g.ReadLimit))
	}
	if g.PongWait < 0 {
		errs = append(errs, "gateway.pong_wait must not be negative")
	}
	if g.TokenSecret == "" {
		errs = append(errs, "gateway.token_secret must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	if s.TickRate < 1 || s.TickRate > 120 {
		return fmt.Errorf("simulation.tick_rate must be 1-120, got %d", s.TickRate)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Flat environment names used by deployment tooling (PORT, SERVER_ID, REDIS_URL,
// TICK_RATE, ASSIGNED_ZONES) are bound explicitly and win over the file.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("RIFTWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlatEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindFlatEnv(v *viper.Viper) {
	_ = v.BindEnv("gateway.port", "PORT")
	_ = v.BindEnv("server.id", "SERVER_ID")
	_ = v.BindEnv("bus.url", "REDIS_URL")
	_ = v.BindEnv("simulation.tick_rate", "TICK_RATE")
	_ = v.BindEnv("server.assigned_zones", "ASSIGNED_ZONES")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.host", "127.0.0.1")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "riftwalk")
	v.SetDefault("database.password", "riftwalk")
	v.SetDefault("database.name", "riftwalk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("bus.url", "redis://localhost:6379/0")
	v.SetDefault("bus.dial_timeout", "5s")

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.read_limit", 65536)
	v.SetDefault("gateway.pong_wait", "60s")
	v.SetDefault("gateway.token_secret", "dev-only-secret")
	v.SetDefault("gateway.token_ttl", "24h")

	// 20 Hz on dedicated zone servers; mains lower this to 10 Hz when
	// running standalone.
	v.SetDefault("simulation.tick_rate", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9100")
}
