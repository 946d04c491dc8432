package person

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aura-rover/aura-backend/internal/detector"
	"github.com/aura-rover/aura-backend/internal/dto"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

type Handler struct {
	store    *Store
	detector *detector.Client
	media    *media.Store
	logger   *slog.Logger
}

func NewHandler(store *Store, det *detector.Client, mediaStore *media.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    store,
		detector: det,
		media:    mediaStore,
		logger:   logger.With("component", "person-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/people", h.Register)
	g.GET("/people", h.List)
	g.DELETE("/people/:id", h.Delete)
}

// Register enrolls a person from an example face photo. The first
// usable face in the image becomes one more reference vector for the
// named person; repeat registrations under the same name accumulate
// vectors.
func (h *Handler) Register(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return shared.BadRequest("name_required", "name is required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return shared.BadRequest("file_required", "an example face image is required")
	}
	if !allowedImageTypes[file.Header.Get("Content-Type")] {
		return shared.BadRequest("unsupported_type", "upload a JPG or PNG image")
	}

	src, err := file.Open()
	if err != nil {
		return shared.BadRequest("unreadable_file", "could not read uploaded file")
	}
	defer src.Close()

	image, err := io.ReadAll(src)
	if err != nil || len(image) == 0 {
		return shared.BadRequest("empty_file", "uploaded file is empty")
	}

	ctx := c.Request().Context()

	detections, err := h.detector.Detect(ctx, image)
	if err != nil {
		h.logger.Error("detector failed during registration", "error", err)
		return shared.InternalError("detector_failed", "error running face detection")
	}
	if len(detections) == 0 {
		return shared.BadRequest("no_face", "no face detected in the image")
	}

	embeddings, err := h.detector.EmbedAll(ctx, image, detections)
	if err != nil {
		h.logger.Error("embedding failed during registration", "error", err)
		return shared.InternalError("detector_failed", "error computing face embedding")
	}

	var vector []float32
	for _, v := range embeddings {
		if v != nil {
			vector = v
			break
		}
	}
	if vector == nil {
		return shared.BadRequest("no_embedding", "could not compute a face embedding")
	}

	p, err := h.store.GetOrCreate(ctx, name)
	if err != nil {
		h.logger.Error("failed to create person", "error", err, "name", name)
		return shared.InternalError("person_create_failed", "could not store person")
	}

	if err := h.store.AddEmbedding(ctx, p.ID, vector); err != nil {
		h.logger.Error("failed to store embedding", "error", err, "person_id", p.ID)
		return shared.InternalError("embedding_store_failed", "could not store face embedding")
	}
	p.Embeddings++

	// The reference photo is a convenience for the dashboard; losing it
	// does not invalidate the registration.
	imageURL := ""
	if err := h.media.SavePersonPhoto(ctx, p.ID, image); err != nil {
		h.logger.Warn("failed to save reference photo", "error", err, "person_id", p.ID)
	} else {
		imageURL = personPhotoURL(p.ID)
	}

	return c.JSON(http.StatusOK, dto.PersonResponse{
		ID:         p.ID,
		Name:       p.Name,
		Embeddings: p.Embeddings,
		ImageURL:   imageURL,
	})
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	people, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error("failed to list people", "error", err)
		return shared.InternalError("person_list_failed", "could not list people")
	}

	resp := dto.PersonListResponse{
		Count:  len(people),
		People: make([]dto.PersonResponse, 0, len(people)),
	}
	for _, p := range people {
		item := dto.PersonResponse{
			ID:         p.ID,
			Name:       p.Name,
			Embeddings: p.Embeddings,
		}
		if h.media.HasPersonPhoto(ctx, p.ID) {
			item.ImageURL = personPhotoURL(p.ID)
		}
		resp.People = append(resp.People, item)
	}

	return c.JSON(http.StatusOK, resp)
}

// personPhotoURL points at the media handler, which hangs off the
// /api group.
func personPhotoURL(id string) string {
	return "/api/media/people/" + id
}

func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	if err := h.store.Delete(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("person_not_found", "person not found")
		}
		h.logger.Error("failed to delete person", "error", err, "person_id", id)
		return shared.InternalError("person_delete_failed", "could not delete person")
	}

	if err := h.media.DeletePersonPhoto(ctx, id); err != nil {
		h.logger.Warn("failed to delete reference photo", "error", err, "person_id", id)
	}

	return c.JSON(http.StatusOK, dto.DeleteResponse{Status: "deleted", ID: id})
}
