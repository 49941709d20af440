package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "threadline"
	DefaultPGSSLMode    = "disable"
	DefaultBotChannel   = "threadline-bots"
	DefaultPruneSpec    = "0 3 * * *"
	DefaultRetainDays   = 30
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Messenger MessengerConfig `toml:"messenger"`
	Prune     PruneConfig     `toml:"prune"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AdminConfig struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// MessengerConfig carries the messaging feature flags.
type MessengerConfig struct {
	Subscriber SubscriberConfig `toml:"bot_subscriber"`
}

// SubscriberConfig controls the bot message dispatch subscriber. When Queued
// is set, matched messages are handed to the named queue instead of being
// executed inline.
type SubscriberConfig struct {
	Enabled bool   `toml:"enabled"`
	Queued  bool   `toml:"queued"`
	Channel string `toml:"channel"`
}

// PruneConfig controls the scheduled purge of soft-deleted records.
type PruneConfig struct {
	Enabled    bool   `toml:"enabled"`
	Spec       string `toml:"spec"`
	RetainDays int    `toml:"retain_days"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Messenger: MessengerConfig{
			Subscriber: SubscriberConfig{
				Enabled: true,
				Channel: DefaultBotChannel,
			},
		},
		Prune: PruneConfig{
			Enabled:    true,
			Spec:       DefaultPruneSpec,
			RetainDays: DefaultRetainDays,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
