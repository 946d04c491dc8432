package roverlog

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_Export_QuotingRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	messages := []string{
		`sensor said "hot", then cooled down`,
		"plain message",
		"line one\nline two",
	}
	for _, msg := range messages {
		if err := store.Create(ctx, &Entry{Message: msg, Category: CategoryFire}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	h := NewHandler(store, discardLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/logs/export", nil)
	rec := httptest.NewRecorder()
	if err := h.Export(e.NewContext(req, rec)); err != nil {
		t.Fatalf("export: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("export is not parseable CSV: %v", err)
	}
	if len(records) != len(messages)+1 {
		t.Fatalf("expected header plus %d rows, got %d", len(messages), len(records))
	}

	got := map[string]bool{}
	for _, row := range records[1:] {
		got[row[5]] = true
	}
	for _, msg := range messages {
		if !got[msg] {
			t.Errorf("message %q did not survive the round trip", msg)
		}
	}
}
