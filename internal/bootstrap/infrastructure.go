package bootstrap

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/detector"
	"github.com/aura-rover/aura-backend/internal/telegram"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
}

func ProvideRedisClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func ProvideDatabase(cfg *Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func ProvideQdrantClient(cfg *Config) (*qdrant.Client, error) {
	return qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
	})
}

func ProvideAnalyzerClient(cfg *Config) *analyzer.Client {
	return analyzer.NewClient(analyzer.Config{
		BaseURL: cfg.AnalyzerURL,
		Model:   cfg.AnalyzerModel,
		Timeout: cfg.AnalyzerTimeout,
	})
}

func ProvideDetectorClient(cfg *Config) *detector.Client {
	return detector.NewClient(detector.Config{
		BaseURL: cfg.DetectorURL,
		Timeout: cfg.DetectorTimeout,
	})
}

func ProvideTelegramClient(cfg *Config) *telegram.Client {
	return telegram.NewClient(telegram.Config{
		Token:       cfg.TelegramToken,
		ChatID:      cfg.TelegramChatID,
		PollTimeout: cfg.TelegramPollTimeout,
	})
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideRedisClient,
		ProvideDatabase,
		ProvideQdrantClient,
		ProvideAnalyzerClient,
		ProvideDetectorClient,
		ProvideTelegramClient,
	),
)
