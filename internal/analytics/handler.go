package analytics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aura-rover/aura-backend/internal/shared"
)

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		aggregator: aggregator,
		logger:     logger.With("component", "analytics-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/analytics", h.Get)
}

func (h *Handler) Get(c echo.Context) error {
	w, err := ParseWindow(c.QueryParam("window"))
	if err != nil {
		return shared.BadRequest("invalid_window", "window must be day, week, month or year")
	}

	ctx := c.Request().Context()

	report, err := h.aggregator.Build(ctx, w, time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to build analytics report", "error", err, "window", w)
		return shared.InternalError("analytics_failed", "could not build analytics report")
	}

	if c.QueryParam("annotate") == "true" {
		h.aggregator.Annotate(ctx, report)
	}

	return c.JSON(http.StatusOK, report)
}
