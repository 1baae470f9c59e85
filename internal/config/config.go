package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	// DBURL is empty when no remote store is configured; the broker then
	// goes straight to the embedded store.
	DBURL          string
	DBMaxConns     int
	ConnectTimeout time.Duration
	PingTimeout    time.Duration

	NotifyBatchSize     int
	NotifierProvider    string
	NotifierSendTimeout time.Duration
	EmailFrom           string
	EmailFromName       string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTLPEndpoint string
	// TraceSampleRatio is the fraction of root spans kept, 0..1.
	TraceSampleRatio float64

	// SeedFile optionally points at demo data loaded at startup.
	SeedFile string
}

// Load reads the environment once. Outside production a .env file in the
// working directory is loaded first if present.
func Load() Config {
	env := getEnv("APP_ENV", "dev")
	if env != "prod" && env != "production" {
		_ = godotenv.Load()
		env = getEnv("APP_ENV", "dev")
	}

	return Config{
		Env:            env,
		Port:           getEnvInt("PORT", 8080),
		DBURL:          buildDBURL(),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 5),
		ConnectTimeout: getEnvDuration("STORE_CONNECT_TIMEOUT", 15*time.Second),
		PingTimeout:    getEnvDuration("STORE_PING_TIMEOUT", 2*time.Second),

		NotifyBatchSize:     getEnvInt("NOTIFY_BATCH_SIZE", 10),
		NotifierProvider:    getEnv("NOTIFIER_PROVIDER", "log"),
		NotifierSendTimeout: getEnvDuration("NOTIFIER_SEND_TIMEOUT", 3*time.Second),
		EmailFrom:           getEnv("EMAIL_FROM", "eventconnect@example.com"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "EVENT CONNECT"),

		AWSRegion:          getEnv("AWS_REGION", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),

		SeedFile: getEnv("SEED_FILE", ""),
	}
}

// buildDBURL prefers DATABASE_URL, then assembles one from DB_* when DB_HOST is set.
func buildDBURL() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "")
	if host == "" {
		return ""
	}
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "eventconnect")
	pass := getEnv("DB_PASSWORD", "eventconnect")
	name := getEnv("DB_NAME", "eventconnect")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: invalid %s=%q, using %d\n", key, v, fallback)
			return fallback
		}

		return num
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15s") or plain milliseconds ("15000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	fmt.Fprintf(os.Stderr, "config: invalid %s=%q, using %s\n", key, v, fallback)
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: invalid %s=%q, using %g\n", key, v, fallback)
		return fallback
	}
	return f
}
