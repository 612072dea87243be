// Package config содержит логику чтения конфигурации платформы Olea Controls.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Поддерживаемые хранилища записей.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config содержит параметры конфигурации платформы.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	Storage         string        `env:"STORAGE"`
	SQLitePath      string        `env:"SQLITE_PATH"`
	UpstreamAddress string        `env:"UPSTREAM_ADDRESS"`
	SyncInterval    time.Duration `env:"SYNC_INTERVAL"`
	AuthSecret      string        `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "postgres database URI")
	flag.StringVar(&cfg.Storage, "s", "", "record storage: memory, sqlite or postgres")
	flag.StringVar(&cfg.SQLitePath, "f", "olea.db", "sqlite database file")
	flag.StringVar(&cfg.UpstreamAddress, "u", "", "back office address")
	flag.DurationVar(&cfg.SyncInterval, "i", 10*time.Second, "back office probe interval")
	flag.StringVar(&cfg.AuthSecret, "k", "", "session cookie signing key")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.Storage != "" {
		cfg.Storage = envCfg.Storage
	}
	if envCfg.SQLitePath != "" {
		cfg.SQLitePath = envCfg.SQLitePath
	}
	if envCfg.UpstreamAddress != "" {
		cfg.UpstreamAddress = envCfg.UpstreamAddress
	}
	if envCfg.SyncInterval != 0 {
		cfg.SyncInterval = envCfg.SyncInterval
	}
	if envCfg.AuthSecret != "" {
		cfg.AuthSecret = envCfg.AuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive, got %s", cfg.SyncInterval)
	}

	switch cfg.Storage {
	case "":
		cfg.Storage = StorageMemory
		if cfg.DatabaseURI != "" {
			cfg.Storage = StoragePostgres
		}
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if cfg.DatabaseURI == "" {
			return nil, errors.New("postgres storage requires DATABASE_URI")
		}
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	return cfg, nil
}
