package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	ShutdownTimeout    time.Duration
	ExposePasswordHash bool
}

type PostgresConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	AutoMigrate     bool
}

type HashConfig struct {
	Cost           int
	MaxConcurrency int64
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Hash     HashConfig
	Log      LogConfig
}

// ConnString returns DATABASE_URL when set, otherwise a keyword/value DSN
// built from the individual DB_* settings.
func (c PostgresConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(c.Host), quoteDSNValue(c.Port), quoteDSNValue(c.User),
		quoteDSNValue(c.Password), quoteDSNValue(c.DBName), quoteDSNValue(c.SSLMode))
}

// quoteDSNValue single-quotes v for a libpq keyword/value string,
// escaping backslashes and quotes.
func quoteDSNValue(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// NewConfig reads .env from the working directory when present and then
// the process environment.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.App.Port = getEnv("APP_PORT", "8080")
	if cfg.App.ShutdownTimeout, err = getDuration("APP_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.App.ExposePasswordHash, err = getBool("APP_EXPOSE_PASSWORD_HASH", false); err != nil {
		return nil, err
	}

	cfg.Postgres.URL = os.Getenv("DATABASE_URL")
	cfg.Postgres.Host = getEnv("DB_HOST", "localhost")
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.User = os.Getenv("DB_USER")
	cfg.Postgres.Password = os.Getenv("DB_PASSWORD")
	cfg.Postgres.DBName = os.Getenv("DB_NAME")
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")

	if cfg.Postgres.URL == "" && (cfg.Postgres.User == "" || cfg.Postgres.DBName == "") {
		return nil, errors.New("DATABASE_URL or DB_USER and DB_NAME are required")
	}

	maxConns, err := getInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	minConns, err := getInt("DB_MIN_CONNS", 0)
	if err != nil {
		return nil, err
	}
	if minConns > maxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", minConns, maxConns)
	}
	cfg.Postgres.MaxConns = int32(maxConns)
	cfg.Postgres.MinConns = int32(minConns)

	if cfg.Postgres.MaxConnLifetime, err = getDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Postgres.AutoMigrate, err = getBool("DB_AUTO_MIGRATE", true); err != nil {
		return nil, err
	}

	if cfg.Hash.Cost, err = getInt("BCRYPT_COST", 10); err != nil {
		return nil, err
	}
	concurrency, err := getInt("HASH_MAX_CONCURRENCY", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("HASH_MAX_CONCURRENCY must be positive, got %d", concurrency)
	}
	cfg.Hash.MaxConcurrency = int64(concurrency)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	if cfg.Log.Pretty, err = getBool("LOG_PRETTY", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return i, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
