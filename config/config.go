package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName     string
	HTTPAddr    string
	CORSOrigins string

	Database DatabaseConfig
	Redis    RedisConfig

	LockTTL time.Duration

	Auth AuthConfig

	MediaDir     string
	TemplatesDir string
	MapMaxWidth  int

	Backup BackupConfig

	Log struct {
		Level  string
		Format string
	}
}

type DatabaseConfig struct {
	Driver   string // sqlite or postgres
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Secret     string
	KeyID      string
	JWKSURL    string
	SessionTTL time.Duration
	LoginPath  string
}

type BackupConfig struct {
	Dir     string
	At      string
	CopyDir string
	CopyURL string
}

// DSN returns the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

// Load reads an optional .env file, then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.AppName = getEnv("APP_NAME", "ALOES")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":3000")
	cfg.CORSOrigins = getEnv("CORS_ORIGINS", "http://127.0.0.1:5173")

	cfg.Database.Driver = getEnv("DB_DRIVER", "sqlite")
	cfg.Database.Path = getEnv("DB_PATH", "./aloes.db")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnv("DB_NAME", "aloes")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.LockTTL = parseDuration(getEnv("LOCK_TTL", "1h"), time.Hour)

	cfg.Auth.Secret = getEnv("JWT_SECRET", "secret")
	cfg.Auth.KeyID = getEnv("JWT_KID", "aloes")
	cfg.Auth.JWKSURL = getEnv("JWKS_URL", "")
	cfg.Auth.SessionTTL = parseDuration(getEnv("SESSION_TTL", "72h"), 72*time.Hour)
	cfg.Auth.LoginPath = getEnv("LOGIN_PATH", "/login")

	cfg.MediaDir = getEnv("MEDIA_DIR", "./media")
	cfg.TemplatesDir = getEnv("TEMPLATES_DIR", "./templates")
	cfg.MapMaxWidth = parseInt(getEnv("MAP_MAX_WIDTH", "1600"), 1600)

	cfg.Backup.Dir = getEnv("BACKUP_DIR", "./backups")
	cfg.Backup.At = getEnv("BACKUP_AT", "18:00")
	cfg.Backup.CopyDir = getEnv("BACKUP_COPY_DIR", "")
	cfg.Backup.CopyURL = getEnv("BACKUP_COPY_URL", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
