package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Lock     LockConfig
	Cache    CacheConfig
	Engine   EngineConfig
	HL7      HL7Config
	Log      LogConfig
	Metrics  MetricsConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig selects the record store backend: postgres, sqlite or memory
type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LeaseMargin is the store I/O allowance a redis lease keeps on top of ENGINE_TIMEOUT
const LeaseMargin = 30 * time.Second

// LockConfig selects how the session coordinator serializes commands: local or redis
type LockConfig struct {
	Driver   string
	Key      string
	LeaseTTL time.Duration
}

type CacheConfig struct {
	Enabled     bool
	Type        string
	WorklistTTL time.Duration
}

// EngineConfig describes the external protocol engine process
type EngineConfig struct {
	Command     string
	Args        []string
	CertPath    string
	Timeout     time.Duration
	EchoTimeout time.Duration
}

type HL7Config struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load reads configuration from the environment, loading a .env file first when present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds the configuration from the current environment only
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "modality_workflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/modality-workflow.db"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Lock: LockConfig{
			Driver:   strings.ToLower(getEnv("LOCK_DRIVER", "local")),
			Key:      getEnv("LOCK_KEY", "modality-workflow:session"),
			LeaseTTL: getEnvDuration("LOCK_LEASE_TTL", 10*time.Minute),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Type:        strings.ToLower(getEnv("CACHE_TYPE", "memory")),
			WorklistTTL: getEnvDuration("CACHE_WORKLIST_TTL", 30*time.Second),
		},
		Engine: EngineConfig{
			Command:     getEnv("ENGINE_COMMAND", "python3"),
			Args:        getEnvList("ENGINE_ARGS", []string{"resources/engine/main.py"}),
			CertPath:    getEnv("ENGINE_CERT_PATH", ""),
			Timeout:     getEnvDuration("ENGINE_TIMEOUT", 2*time.Minute),
			EchoTimeout: getEnvDuration("ENGINE_ECHO_TIMEOUT", 10*time.Second),
		},
		HL7: HL7Config{
			DialTimeout: getEnvDuration("HL7_DIAL_TIMEOUT", 10*time.Second),
			ReadTimeout: getEnvDuration("HL7_READ_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
		},
	}
}

// Validate checks the configuration for invalid combinations
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return errors.New("postgres store requires DB_HOST and DB_NAME")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return errors.New("sqlite store requires SQLITE_PATH")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Redis.Host == "" {
			return errors.New("redis lock requires REDIS_HOST")
		}
		if c.Lock.LeaseTTL <= 0 {
			return errors.New("redis lock requires a positive LOCK_LEASE_TTL")
		}
		// the lease is not renewed, so it must outlive the slowest engine call
		if c.Lock.LeaseTTL < c.Engine.Timeout+LeaseMargin {
			return fmt.Errorf("LOCK_LEASE_TTL %s must be at least ENGINE_TIMEOUT %s plus %s",
				c.Lock.LeaseTTL, c.Engine.Timeout, LeaseMargin)
		}
	default:
		return fmt.Errorf("unsupported lock driver: %s", c.Lock.Driver)
	}

	if c.Cache.Enabled && c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}

	if c.Engine.Command == "" {
		return errors.New("ENGINE_COMMAND is required")
	}
	if c.Engine.Timeout <= 0 {
		return errors.New("ENGINE_TIMEOUT must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
