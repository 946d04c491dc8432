package event

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/detector"
	"github.com/aura-rover/aura-backend/internal/dto"
	"github.com/aura-rover/aura-backend/internal/facematch"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/notifier"
	"github.com/aura-rover/aura-backend/internal/person"
	"github.com/aura-rover/aura-backend/internal/shared"
)

type Handler struct {
	pipeline *Pipeline
	store    *Store
	detector *detector.Client
	people   *person.Store
	matcher  *facematch.Matcher
	media    *media.Store
	analyzer *analyzer.Client
	notifier *notifier.Notifier
	logger   *slog.Logger
}

func NewHandler(pipeline *Pipeline, store *Store, det *detector.Client, people *person.Store, matcher *facematch.Matcher, mediaStore *media.Store, an *analyzer.Client, n *notifier.Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline: pipeline,
		store:    store,
		detector: det,
		people:   people,
		matcher:  matcher,
		media:    mediaStore,
		analyzer: an,
		notifier: n,
		logger:   logger.With("component", "event-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/detect", h.Detect)
	g.GET("/events", h.List)
	g.POST("/events/fire", h.FireAlert)
	g.POST("/events/gas", h.GasAlert)
	g.POST("/events/:id/analyze", h.Analyze)
	g.POST("/analyze/frame", h.AnalyzeFrame)
	g.POST("/telegram/last-ai", h.SendLastAI)
}

// Detect ingests one camera frame: detect faces, match them against
// registered people and, when a stranger shows up, raise an alert. The
// rover keeps streaming regardless of what the alert side does, so
// everything past matching is best-effort and the response is always
// the assignments.
func (h *Handler) Detect(c echo.Context) error {
	image, err := readImage(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()

	if err := h.media.SetLatestFrame(ctx, image); err != nil {
		h.logger.Warn("failed to cache latest frame", "error", err)
	}

	detections, err := h.detector.Detect(ctx, image)
	if err != nil {
		h.logger.Error("face detection failed", "error", err)
		return shared.InternalError("detector_failed", "error running face detection")
	}
	if len(detections) == 0 {
		return c.JSON(http.StatusOK, dto.DetectResponse{Faces: 0, Assignments: []facematch.Assignment{}})
	}

	embeddings, err := h.detector.EmbedAll(ctx, image, detections)
	if err != nil {
		h.logger.Error("face embedding failed", "error", err)
		return shared.InternalError("detector_failed", "error computing face embeddings")
	}

	refs, err := h.people.ReferenceVectors(ctx)
	if err != nil {
		h.logger.Error("failed to load reference vectors", "error", err)
		return shared.InternalError("reference_load_failed", "error loading registered faces")
	}

	assignments := h.matcher.Match(embeddings, refs)

	resp := dto.DetectResponse{Faces: len(detections), Assignments: assignments}

	if unknowns := countUnknown(assignments, embeddings); unknowns > 0 {
		e := h.pipeline.Process(ctx, Trigger{
			Type:   TypeUnknownFace,
			Source: "camera",
			Image:  image,
			Metadata: shared.JSONMap{
				"faces":   len(detections),
				"unknown": unknowns,
			},
		})
		resp.EventID = e.ID
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) FireAlert(c echo.Context) error {
	return h.sensorAlert(c, TypeFire)
}

func (h *Handler) GasAlert(c echo.Context) error {
	return h.sensorAlert(c, TypeGas)
}

// sensorAlert handles a sensor trip from the rover. The frame attached
// to the alert is whatever the camera last saw; sensors have no camera
// of their own.
func (h *Handler) sensorAlert(c echo.Context, t Type) error {
	var req dto.CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "could not parse request body")
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "sensor"
	}

	ctx := c.Request().Context()

	image, err := h.media.LatestFrame(ctx)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Warn("failed to load latest frame for alert", "error", err)
	}

	e := h.pipeline.Process(ctx, Trigger{
		Type:     t,
		Source:   source,
		Image:    image,
		Metadata: shared.JSONMap(req.Metadata),
	})

	return c.JSON(http.StatusOK, toEventResponse(e))
}

func (h *Handler) List(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	events, err := h.store.Recent(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		return shared.InternalError("event_list_failed", "could not list events")
	}

	resp := dto.EventListResponse{
		Count:  len(events),
		Events: make([]dto.EventResponse, 0, len(events)),
	}
	for i := range events {
		resp.Events = append(resp.Events, toEventResponse(&events[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// Analyze re-runs enrichment for an event whose earlier attempt did
// not succeed.
func (h *Handler) Analyze(c echo.Context) error {
	id := c.Param("id")

	e, outcome, err := h.pipeline.Reanalyze(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("event_not_found", "event not found")
		}
		h.logger.Error("failed to reanalyze event", "error", err, "event_id", id)
		return shared.InternalError("event_analyze_failed", "could not analyze event")
	}

	return c.JSON(http.StatusOK, dto.AnalyzeEventResponse{
		Event:   toEventResponse(e),
		Outcome: string(outcome),
	})
}

// AnalyzeFrame runs the analyzer over the most recent camera frame on
// demand and forwards the answer to the operator channel.
func (h *Handler) AnalyzeFrame(c echo.Context) error {
	var req struct {
		Prompt string `json:"prompt"`
	}
	_ = c.Bind(&req)

	ctx := c.Request().Context()

	image, err := h.media.LatestFrame(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("no_frame", "no camera frame has been received yet")
	}
	if err != nil {
		h.logger.Error("failed to load latest frame", "error", err)
		return shared.InternalError("frame_load_failed", "could not load latest frame")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "Describe this scene captured by a patrolling security rover in two or three short sentences."
	}

	res, err := h.analyzer.AnalyzeImage(ctx, image, prompt)
	if err != nil {
		if shared.IsUnavailable(err) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "AI analysis server is currently unavailable")
		}
		h.logger.Error("frame analysis failed", "error", err)
		return shared.InternalError("analysis_failed", "frame analysis failed")
	}

	notified := h.notifier.SendPhoto(ctx, image, res.Content)

	return c.JSON(http.StatusOK, dto.FrameAnalysisResponse{
		Content:   res.Content,
		Model:     res.Model,
		LatencyMS: res.LatencyMS,
		Notified:  notified,
	})
}

// SendLastAI pushes the most recent successful analysis to Telegram.
func (h *Handler) SendLastAI(c echo.Context) error {
	ctx := c.Request().Context()

	e, err := h.store.LatestAnalyzed(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("no_analysis", "no analyzed events yet")
	}
	if err != nil {
		h.logger.Error("failed to load latest analysis", "error", err)
		return shared.InternalError("event_load_failed", "could not load latest analysis")
	}

	delivered := h.pipeline.Notify(ctx, e)

	return c.JSON(http.StatusOK, map[string]any{
		"event_id":  e.ID,
		"delivered": delivered,
	})
}

func toEventResponse(e *Event) dto.EventResponse {
	resp := dto.EventResponse{
		ID:                e.ID,
		CreatedAt:         e.CreatedAt,
		Type:              string(e.Type),
		Source:            e.Source,
		State:             string(e.State),
		HasImage:          e.HasImage,
		ShortSummary:      e.ShortSummary,
		LongSummary:       e.LongSummary,
		AnalyzerModel:     e.AnalyzerModel,
		AnalyzerLatencyMS: e.AnalyzerLatencyMS,
		AnalyzedAt:        e.AnalyzedAt,
	}
	if e.HasImage {
		// Routes hang off the /api group.
		resp.ImageURL = "/api/media/events/" + e.ID
	}
	return resp
}

func readImage(c echo.Context) ([]byte, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, shared.BadRequest("file_required", "a frame image is required")
	}

	src, err := file.Open()
	if err != nil {
		return nil, shared.BadRequest("unreadable_file", "could not read uploaded file")
	}
	defer src.Close()

	image, err := io.ReadAll(src)
	if err != nil || len(image) == 0 {
		return nil, shared.BadRequest("empty_file", "uploaded file is empty")
	}
	return image, nil
}

// countUnknown counts faces that produced a usable embedding but did
// not resolve to a registered person. Faces without a usable embedding
// are reported Unknown too, but they carry no evidence of a stranger.
func countUnknown(assignments []facematch.Assignment, embeddings [][]float32) int {
	n := 0
	for i, a := range assignments {
		if a.PersonName == facematch.Unknown && i < len(embeddings) && embeddings[i] != nil {
			n++
		}
	}
	return n
}
