package media

import (
	"errors"
	"net/http"

	"github.com/aura-rover/aura-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

// Handler serves stored images to the dashboard.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/media/people/:id", h.PersonPhoto)
	g.GET("/media/events/:id", h.EventImage)
	g.GET("/media/frame", h.LatestFrame)
}

func (h *Handler) PersonPhoto(c echo.Context) error {
	data, err := h.store.PersonPhoto(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mediaError(err)
	}
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

func (h *Handler) EventImage(c echo.Context) error {
	data, err := h.store.EventImage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mediaError(err)
	}
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

func (h *Handler) LatestFrame(c echo.Context) error {
	data, err := h.store.LatestFrame(c.Request().Context())
	if err != nil {
		return mediaError(err)
	}
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

func mediaError(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("image_not_found", "image not found")
	}
	return shared.InternalError("media_failed", "could not load image")
}
