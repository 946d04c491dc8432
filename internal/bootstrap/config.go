package bootstrap

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr string
	LogLevel   string
	LogFormat  string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string

	DetectorURL     string
	DetectorTimeout time.Duration

	AnalyzerURL     string
	AnalyzerModel   string
	AnalyzerTimeout time.Duration

	TelegramToken       string
	TelegramChatID      string
	TelegramPollTimeout time.Duration

	MatchThreshold float64
	MatchMinScore  float64

	FrameTTL time.Duration
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,

		QdrantHost:   getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:   getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),

		DetectorURL:     getEnv("DETECTOR_URL", ""),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 10*time.Second),

		AnalyzerURL:     getEnv("OLLAMA_URL", ""),
		AnalyzerModel:   getEnv("OLLAMA_MODEL", "llava"),
		AnalyzerTimeout: getEnvDuration("OLLAMA_TIMEOUT", 60*time.Second),

		TelegramToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramPollTimeout: getEnvDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),

		MatchThreshold: getEnvFloat("FACE_MATCH_THRESHOLD", 0),
		MatchMinScore:  getEnvFloat("FACE_MATCH_MIN_SCORE", 0),

		FrameTTL: getEnvDuration("FRAME_TTL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
