// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
	Store     string `env:"STORE" envDefault:"postgres"`
	SeedDemo  bool   `env:"SEED_DEMO" envDefault:"false"`
	GRPC      GRPC
	Postgres  Postgres
	Redis     Redis
	Jobs      Jobs
}

type GRPC struct {
	Addr         string `env:"GRPC_ADDR" envDefault:":8080"`
	APIToken     string `env:"API_TOKEN" envDefault:"dev-token"`
	MaxRangeDays int    `env:"MAX_RANGE_DAYS" envDefault:"36600"`
}

type Postgres struct {
	ConnStr         string        `env:"DB_CONN_STR"`
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	DbName          string        `env:"DB_NAME" envDefault:"nummus"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type Redis struct {
	Enabled  bool          `env:"REDIS_ENABLED" envDefault:"false"`
	Addr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

type Jobs struct {
	// Zero disables the reconciliation job
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"24h"`
}

// DSN returns DB_CONN_STR when set, otherwise builds one from the individual fields
func (p Postgres) DSN() string {
	if p.ConnStr != "" {
		return p.ConnStr
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DbName)
}

// Validate checks values env parsing cannot
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}
	switch c.Postgres.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("DB_DRIVER must be \"postgres\" or \"pgx\", got %q", c.Postgres.Driver)
	}
	if c.GRPC.MaxRangeDays <= 0 {
		return errors.New("MAX_RANGE_DAYS must be positive")
	}
	if c.Jobs.ReconcileInterval < 0 {
		return errors.New("RECONCILE_INTERVAL cannot be negative")
	}
	return nil
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config error: %s", err)
	}
	return cfg
}
