package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the relay reads from the environment.
type Config struct {
	Port string

	ElasticURL    string
	ElasticAPIKey string
	ChunkIndex    string
	SessionsIndex string

	BulkBatchSize     int
	BulkFlushInterval time.Duration

	RTMSClientID     string
	RTMSClientSecret string
	HandshakeTimeout time.Duration

	SessionGrace time.Duration

	LogLevel string
	LogJSON  bool
}

func LoadEnv() error {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println(fmt.Sprintf("No .env file loaded: %v", err))
		return err
	}
	return nil
}

// Load builds the relay configuration from environment variables,
// falling back to defaults for everything except credentials.
func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		ElasticURL:    getEnv("ELASTICSEARCH_URL", ""),
		ElasticAPIKey: getEnv("ELASTIC_API_KEY", ""),
		ChunkIndex:    getEnv("ELASTIC_INDEX", "ta-da-latest"),
		SessionsIndex: getEnv("ELASTIC_SESSIONS_INDEX", "ta-da-sessions"),

		BulkBatchSize:     getEnvInt("BULK_BATCH_SIZE", 50),
		BulkFlushInterval: time.Duration(getEnvInt("BULK_FLUSH_INTERVAL_MS", 2000)) * time.Millisecond,

		RTMSClientID:     getEnv("ZM_RTMS_CLIENT", ""),
		RTMSClientSecret: getEnv("ZM_RTMS_SECRET", ""),
		HandshakeTimeout: time.Duration(getEnvInt("HANDSHAKE_TIMEOUT_MS", 10000)) * time.Millisecond,

		SessionGrace: time.Duration(getEnvInt("SESSION_GRACE_MS", 60000)) * time.Millisecond,

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", true),
	}
}

// PersistenceEnabled reports whether the storage sink is configured.
// Without a URL and API key the relay runs ingestion and fan-out only.
func (c Config) PersistenceEnabled() bool {
	return c.ElasticURL != "" && c.ElasticAPIKey != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %v", key, value, fallback)
		return fallback
	}
	return b
}
