package roverlog

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aura-rover/aura-backend/internal/dto"
	"github.com/aura-rover/aura-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		logger: logger.With("component", "roverlog-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/logs", h.Create)
	g.GET("/logs", h.List)
	g.GET("/logs/export", h.Export)
}

func (h *Handler) Create(c echo.Context) error {
	var req dto.CreateLogRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return shared.BadRequest("message_required", "message is required")
	}

	entry := &Entry{
		Level:    req.Level,
		Source:   req.Source,
		Category: req.Category,
		Message:  req.Message,
		Data:     req.Data,
	}
	if err := h.store.Create(c.Request().Context(), entry); err != nil {
		h.logger.Error("failed to create log entry", "error", err)
		return shared.InternalError("log_create_failed", "could not persist log entry")
	}

	return c.JSON(http.StatusOK, toLogResponse(entry))
}

func (h *Handler) List(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	limit = clamp(limit, 1, 1000)

	entries, err := h.store.Recent(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to list logs", "error", err)
		return shared.InternalError("log_list_failed", "could not list logs")
	}

	resp := dto.LogListResponse{
		Count: len(entries),
		Logs:  make([]dto.LogResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Logs = append(resp.Logs, toLogResponse(e))
	}
	return c.JSON(http.StatusOK, resp)
}

// Export renders recent logs as CSV for download.
func (h *Handler) Export(c echo.Context) error {
	limit := 1000
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	limit = clamp(limit, 1, 5000)

	entries, err := h.store.Recent(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to export logs", "error", err)
		return shared.InternalError("log_export_failed", "could not export logs")
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{"id", "timestamp", "level", "source", "category", "message"})
	for _, e := range entries {
		_ = w.Write([]string{
			e.ID,
			e.CreatedAt.Format(time.RFC3339),
			e.Level,
			e.Source,
			e.Category,
			e.Message,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.logger.Error("failed to render log export", "error", err)
		return shared.InternalError("log_export_failed", "could not export logs")
	}

	return c.Blob(http.StatusOK, "text/csv", []byte(b.String()))
}

func toLogResponse(e *Entry) dto.LogResponse {
	return dto.LogResponse{
		ID:        e.ID,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		Level:     e.Level,
		Source:    e.Source,
		Category:  e.Category,
		Message:   e.Message,
		Data:      e.Data,
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
