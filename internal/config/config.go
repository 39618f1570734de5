package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
	Tokens    TokensConfig
	Sessions  SessionsConfig
	Sweeper   SweeperConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	Environment    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// StorageConfig selects the repositories. SeedFile loads students and
// artists into the memory driver.
type StorageConfig struct {
	Driver   string
	SeedFile string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectRetries  int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers   []string
	ScanTopic string
}

// AdminConfig holds the key used to verify admin bearer tokens. Issuance
// happens in the identity provider; an empty path disables admin routes.
type AdminConfig struct {
	PublicKeyPath string
	Issuer        string
	Role          string
}

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

type TokensConfig struct {
	HistoryCap int
}

type SessionsConfig struct {
	StaleAfter time.Duration
	Retention  time.Duration
}

type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Storage: StorageConfig{
			Driver:   getEnv("STORAGE_DRIVER", StorageDriverPostgres),
			SeedFile: getEnv("MEMORY_SEED_FILE", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "nfc"),
			Password:        getEnv("DB_PASSWORD", "nfc"),
			DBName:          getEnv("DB_NAME", "nfcdb"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectRetries:  getIntEnv("DB_CONNECT_RETRIES", 10),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:   getListEnv("KAFKA_BROKERS", nil),
			ScanTopic: getEnv("KAFKA_SCAN_TOPIC", "nfc.scans"),
		},
		Admin: AdminConfig{
			PublicKeyPath: getEnv("ADMIN_JWT_PUBLIC_KEY_PATH", ""),
			Issuer:        getEnv("ADMIN_JWT_ISSUER", ""),
			Role:          getEnv("ADMIN_ROLE", "admin"),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
			Limit:   getIntEnv("RATE_LIMIT_REQUESTS", 60),
			Window:  getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		Tokens: TokensConfig{
			HistoryCap: getIntEnv("SCAN_HISTORY_CAP", 50),
		},
		Sessions: SessionsConfig{
			StaleAfter: getDurationEnv("SESSION_STALE_AFTER", 30*time.Minute),
			Retention:  getDurationEnv("SESSION_RETENTION", 90*24*time.Hour),
		},
		Sweeper: SweeperConfig{
			Enabled:  getBoolEnv("SWEEP_ENABLED", true),
			Interval: getDurationEnv("SWEEP_INTERVAL", 5*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.Tokens.HistoryCap <= 0 {
		return fmt.Errorf("SCAN_HISTORY_CAP must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
