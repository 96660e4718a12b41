package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	LiveKit   LiveKitConfig
	Vimeo     VimeoConfig
	Recording RecordingConfig
	Cleanup   CleanupConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/academy?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the recordings bucket name.
// The same credentials are handed to the egress provider so it can write
// the intermediate artifact directly into the bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// LiveKitConfig holds the conferencing provider's control API settings.
// APIKey/APISecret also authenticate inbound webhook deliveries.
type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

// VimeoConfig holds hosted-video platform settings.
type VimeoConfig struct {
	AccessToken  string
	APIBase      string
	PrivacyView  string   // privacy policy applied to uploaded recordings
	EmbedDomains []string // domains allowed to embed the player
}

// RecordingConfig holds recording pipeline policy.
type RecordingConfig struct {
	AllowRestart        bool // permit a new egress for a session whose recording previously failed
	EmbedURLRetryWaitMS int  // single bounded wait before the second embed-URL attempt
	CallTimeoutSec      int  // applied to external HTTP clients
}

// CleanupConfig holds intermediate-artifact cleanup settings.
type CleanupConfig struct {
	InitialDelayMin int // delay before the first cleanup attempt
	MaxDelayMin     int // backoff cap
	MaxAttempts     int // attempts before the task is dead-lettered
	PollIntervalSec int // how often the worker checks for due tasks
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/academy?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "academy"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", ""),
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
		},
		Vimeo: VimeoConfig{
			AccessToken:  getEnv("VIMEO_ACCESS_TOKEN", ""),
			APIBase:      getEnv("VIMEO_API_BASE", "https://api.vimeo.com"),
			PrivacyView:  getEnv("VIMEO_PRIVACY_VIEW", "disable"),
			EmbedDomains: splitTrim(getEnv("VIMEO_EMBED_DOMAINS", ""), ","),
		},
		Recording: RecordingConfig{
			AllowRestart:        getEnvBool("RECORDING_ALLOW_RESTART", false),
			EmbedURLRetryWaitMS: getEnvInt("RECORDING_EMBED_RETRY_WAIT_MS", 3000),
			CallTimeoutSec:      getEnvInt("RECORDING_CALL_TIMEOUT_SEC", 30),
		},
		Cleanup: CleanupConfig{
			InitialDelayMin: getEnvInt("CLEANUP_INITIAL_DELAY_MIN", 30),
			MaxDelayMin:     getEnvInt("CLEANUP_MAX_DELAY_MIN", 360),
			MaxAttempts:     getEnvInt("CLEANUP_MAX_ATTEMPTS", 10),
			PollIntervalSec: getEnvInt("CLEANUP_POLL_INTERVAL_SEC", 30),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
