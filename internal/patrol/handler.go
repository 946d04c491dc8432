package patrol

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aura-rover/aura-backend/internal/dto"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/shared"
)

type Handler struct {
	store   *Store
	service *Service
	logger  *slog.Logger
}

func NewHandler(store *Store, service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   store,
		service: service,
		logger:  logger.With("component", "patrol-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patrol/paths", h.ListPaths)
	g.POST("/patrol/paths", h.CreatePath)
	g.DELETE("/patrol/paths/:id", h.DeletePath)
	g.PATCH("/patrol/paths/:id/schedule", h.UpdateSchedule)

	g.GET("/patrol/sessions", h.ListSessions)
	g.POST("/patrol/sessions/start", h.Start)
	g.POST("/patrol/sessions/stop", h.Stop)
	g.POST("/patrol/sessions/cancel", h.Cancel)
	g.POST("/patrol/sessions/:id/analyze", h.Analyze)
}

func (h *Handler) CreatePath(c echo.Context) error {
	var req dto.CreatePathRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "could not parse request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return shared.BadRequest("name_required", "name is required")
	}
	if len(req.Steps) == 0 {
		return shared.BadRequest("steps_required", "at least one waypoint is required")
	}

	p := &Path{
		Name:     name,
		Steps:    shared.StringSlice(req.Steps),
		Schedule: shared.StringSlice(req.Schedule),
	}
	if err := h.store.CreatePath(c.Request().Context(), p); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.Conflict("path_exists", "a path with that name already exists")
		}
		h.logger.Error("failed to create path", "error", err, "name", name)
		return shared.InternalError("path_create_failed", "could not store patrol path")
	}

	return c.JSON(http.StatusOK, toPathResponse(p))
}

func (h *Handler) ListPaths(c echo.Context) error {
	paths, err := h.store.ListPaths(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list paths", "error", err)
		return shared.InternalError("path_list_failed", "could not list patrol paths")
	}

	resp := dto.PathListResponse{
		Count: len(paths),
		Paths: make([]dto.PathResponse, 0, len(paths)),
	}
	for i := range paths {
		resp.Paths = append(resp.Paths, toPathResponse(&paths[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeletePath(c echo.Context) error {
	id := c.Param("id")

	if err := h.store.DeletePath(c.Request().Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("path_not_found", "patrol path not found")
		}
		h.logger.Error("failed to delete path", "error", err, "path_id", id)
		return shared.InternalError("path_delete_failed", "could not delete patrol path")
	}

	return c.JSON(http.StatusOK, dto.DeleteResponse{Status: "deleted", ID: id})
}

func (h *Handler) UpdateSchedule(c echo.Context) error {
	id := c.Param("id")

	var req dto.UpdateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "could not parse request body")
	}
	for _, slot := range req.Schedule {
		if !validSlot(slot) {
			return shared.BadRequest("invalid_slot", "schedule slots must be HH:MM")
		}
	}

	ctx := c.Request().Context()

	p, err := h.store.GetPath(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("path_not_found", "patrol path not found")
		}
		h.logger.Error("failed to load path", "error", err, "path_id", id)
		return shared.InternalError("path_load_failed", "could not load patrol path")
	}

	p.Schedule = shared.StringSlice(req.Schedule)
	if err := h.store.UpdatePath(ctx, p); err != nil {
		h.logger.Error("failed to update schedule", "error", err, "path_id", id)
		return shared.InternalError("schedule_update_failed", "could not update schedule")
	}

	return c.JSON(http.StatusOK, toPathResponse(p))
}

func (h *Handler) Start(c echo.Context) error {
	var req dto.StartPatrolRequest
	_ = c.Bind(&req)

	sess, err := h.service.Start(c.Request().Context(), req.PathID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("path_not_found", "patrol path not found")
		}
		h.logger.Error("failed to start patrol", "error", err)
		return shared.InternalError("patrol_start_failed", "could not start patrol")
	}

	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) Stop(c echo.Context) error {
	sess, err := h.service.Stop(c.Request().Context())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("no_active_patrol", "no patrol is running")
		}
		h.logger.Error("failed to stop patrol", "error", err)
		return shared.InternalError("patrol_stop_failed", "could not stop patrol")
	}

	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) Cancel(c echo.Context) error {
	sess, err := h.service.Cancel(c.Request().Context())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("no_active_patrol", "no patrol is running")
		}
		h.logger.Error("failed to cancel patrol", "error", err)
		return shared.InternalError("patrol_cancel_failed", "could not cancel patrol")
	}

	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) ListSessions(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	sessions, err := h.store.RecentSessions(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		return shared.InternalError("session_list_failed", "could not list patrol sessions")
	}

	resp := dto.SessionListResponse{
		Count:    len(sessions),
		Sessions: make([]dto.SessionResponse, 0, len(sessions)),
	}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(&sessions[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Analyze(c echo.Context) error {
	id := c.Param("id")

	sess, outcome, err := h.service.Analyze(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("session_not_found", "patrol session not found")
		}
		h.logger.Error("failed to analyze session", "error", err, "session_id", id)
		return shared.InternalError("session_analyze_failed", "could not analyze patrol session")
	}
	if outcome == event.OutcomeUnavailable {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "AI analysis server is currently unavailable")
	}

	return c.JSON(http.StatusOK, dto.AnalyzeSessionResponse{
		Session: toSessionResponse(sess),
		Outcome: string(outcome),
	})
}

func toPathResponse(p *Path) dto.PathResponse {
	return dto.PathResponse{
		ID:       p.ID,
		Name:     p.Name,
		Steps:    []string(p.Steps),
		Schedule: []string(p.Schedule),
	}
}

func toSessionResponse(s *Session) dto.SessionResponse {
	return dto.SessionResponse{
		ID:            s.ID,
		PathID:        s.PathID,
		PathName:      s.PathName,
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		Report:        s.Report,
		AnalysisState: string(s.AnalysisState),
		Analysis:      s.Analysis,
		AnalyzedAt:    s.AnalyzedAt,
	}
}

// validSlot accepts 24h HH:MM.
func validSlot(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	hh, err := strconv.Atoi(s[:2])
	if err != nil || hh < 0 || hh > 23 {
		return false
	}
	mm, err := strconv.Atoi(s[3:])
	if err != nil || mm < 0 || mm > 59 {
		return false
	}
	return true
}
