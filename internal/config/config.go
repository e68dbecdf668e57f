package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Chapa ChapaConfig
	Sweep SweepConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CallbackRate  float64
	CallbackBurst int
}

// ChapaConfig configures the payment gateway client.
type ChapaConfig struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
	ReturnURL   string
	Timeout     time.Duration
}

// Configured reports whether the gateway can be called at all.
func (c ChapaConfig) Configured() bool {
	return c.SecretKey != ""
}

// SweepConfig configures the expiry/reminder sweep.
type SweepConfig struct {
	RunInterval    time.Duration
	JobTimeout     time.Duration
	BatchSize      int
	ReminderWindow time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "conmart"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPPort:     getenv("HTTP_PORT", "8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "conmart"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		Chapa: ChapaConfig{
			SecretKey:   strings.TrimSpace(getenv("CHAPA_SECRET_KEY", "")),
			BaseURL:     strings.TrimRight(getenv("CHAPA_BASE_URL", "https://api.chapa.co/v1"), "/"),
			CallbackURL: getenv("CHAPA_CALLBACK_URL", ""),
			ReturnURL:   getenv("CHAPA_RETURN_URL", ""),
			Timeout:     time.Duration(getenvInt("CHAPA_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Sweep: SweepConfig{
			RunInterval:    getenvDuration("SWEEP_INTERVAL", time.Hour),
			JobTimeout:     getenvDuration("SWEEP_JOB_TIMEOUT", 5*time.Minute),
			BatchSize:      getenvInt("SWEEP_BATCH_SIZE", 200),
			ReminderWindow: time.Duration(getenvInt("SWEEP_REMINDER_WINDOW_DAYS", 5)) * 24 * time.Hour,
		},

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		CallbackRate:  getenvFloat("CALLBACK_RATE_LIMIT", 20),
		CallbackBurst: getenvInt("CALLBACK_RATE_BURST", 40),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
