package person

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/aura-rover/aura-backend/internal/dto"
	"github.com/aura-rover/aura-backend/internal/media"
)

func TestHandler_List_PhotoURLs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := &Person{Name: "Ada"}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	mr := miniredis.RunT(t)
	mediaStore := media.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	if err := mediaStore.SavePersonPhoto(ctx, p.ID, []byte("jpeg-bytes")); err != nil {
		t.Fatalf("save photo: %v", err)
	}

	h := NewHandler(store, nil, mediaStore, slog.New(slog.NewTextHandler(io.Discard, nil)))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/people", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}

	var resp dto.PersonListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("expected one person, got %d", resp.Count)
	}
	if want := "/api/media/people/" + p.ID; resp.People[0].ImageURL != want {
		t.Errorf("expected photo url %q, got %q", want, resp.People[0].ImageURL)
	}
}
