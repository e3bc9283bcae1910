// Package config loads server settings from an optional YAML file and
// DEALFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full server configuration
type Config struct {
	Store StoreConfig  `yaml:"store" mapstructure:"store"`
	GRPC  ServerConfig `yaml:"grpc" mapstructure:"grpc"`
	HTTP  ServerConfig `yaml:"http" mapstructure:"http"`
	Auth  AuthConfig   `yaml:"auth" mapstructure:"auth"`
	Redis RedisConfig  `yaml:"redis" mapstructure:"redis"`
	Log   LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and locates the database
type StoreConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	DSN        string `yaml:"dsn" mapstructure:"dsn"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig is a listen address
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// AuthConfig configures bearer-token validation
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

// RedisConfig enables the cross-process deal lock; an empty Addr keeps locks in process
type RedisConfig struct {
	Addr    string        `yaml:"addr" mapstructure:"addr"`
	LockTTL time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "data/dealflow.db",
		},
		GRPC: ServerConfig{Addr: ":50051"},
		HTTP: ServerConfig{Addr: ":8080"},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Redis: RedisConfig{
			LockTTL: 30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (if not empty) and applies DEALFLOW_* overrides, e.g.
// DEALFLOW_STORE_DRIVER or DEALFLOW_AUTH_JWT_SECRET
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("DEALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("grpc.addr", d.GRPC.Addr)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.lock_ttl", d.Redis.LockTTL)
	v.SetDefault("log.level", d.Log.Level)
}

// Validate checks settings that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want postgres or sqlite)", c.Store.Driver)
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return errors.New("redis.lock_ttl must be positive")
	}
	return nil
}
