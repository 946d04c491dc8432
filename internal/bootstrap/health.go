package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/detector"
	"github.com/aura-rover/aura-backend/internal/feed"
	"github.com/aura-rover/aura-backend/internal/health"
	"github.com/aura-rover/aura-backend/internal/telegram"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redisClient *redis.Client,
	qdrantClient *qdrant.Client,
	an *analyzer.Client,
	det *detector.Client,
	tg *telegram.Client,
	hub *feed.Hub,
) *health.Handler {
	return health.NewHandler(
		db,
		redisClient,
		qdrantClient,
		an,
		det,
		tg,
		hub,
		version,
	)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
