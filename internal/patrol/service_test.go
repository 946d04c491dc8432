package patrol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/shared"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupService(t *testing.T, analyzerURL string) (*Service, *Store, *event.Store) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	events := event.NewStore(db)
	if err := events.Migrate(); err != nil {
		t.Fatalf("event migration failed: %v", err)
	}
	logs := roverlog.NewStore(db, discard())
	if err := logs.Migrate(); err != nil {
		t.Fatalf("log migration failed: %v", err)
	}

	an := analyzer.NewClient(analyzer.Config{BaseURL: analyzerURL, Model: "llava", Timeout: 2 * time.Second})
	return NewService(store, events, logs, an, discard()), store, events
}

func TestService_StartStop(t *testing.T) {
	svc, store, _ := setupService(t, "")
	ctx := context.Background()

	p := &Path{Name: "perimeter", Steps: shared.StringSlice{"gate", "fence", "dock"}}
	if err := store.CreatePath(ctx, p); err != nil {
		t.Fatalf("create path: %v", err)
	}

	sess, err := svc.Start(ctx, p.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Status != StatusActive {
		t.Errorf("expected active, got %s", sess.Status)
	}
	if sess.PathName != "perimeter" {
		t.Errorf("expected path name, got %q", sess.PathName)
	}

	stopped, err := svc.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", stopped.Status)
	}
	if stopped.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}
	if stopped.Report == "" {
		t.Error("expected a window report")
	}
}

func TestService_Start_ForceCompletesStale(t *testing.T) {
	svc, store, _ := setupService(t, "")
	ctx := context.Background()

	first, err := svc.Start(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := svc.Start(ctx, "")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	reloaded, err := store.GetSession(ctx, first.ID)
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	if reloaded.Status != StatusCompleted {
		t.Errorf("expected stale session completed, got %s", reloaded.Status)
	}
	if reloaded.EndedAt == nil {
		t.Error("expected stale session to get an end time")
	}

	active, err := store.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID != second.ID {
		t.Error("expected the new session to be the only active one")
	}
}

func TestService_Start_UnknownPath(t *testing.T) {
	svc, _, _ := setupService(t, "")

	if _, err := svc.Start(context.Background(), "path_missing"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Stop_NoActive(t *testing.T) {
	svc, _, _ := setupService(t, "")

	if _, err := svc.Stop(context.Background()); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Cancel(t *testing.T) {
	svc, _, _ := setupService(t, "")
	ctx := context.Background()

	if _, err := svc.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := svc.Cancel(ctx)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sess.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", sess.Status)
	}
	if sess.Report != "" {
		t.Error("cancelled session should not get a report")
	}
}

func TestService_SummarizeWindow(t *testing.T) {
	svc, _, events := setupService(t, "")
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)
	end := time.Now().UTC()

	for _, typ := range []event.Type{event.TypeFire, event.TypeFire, event.TypeUnknownFace} {
		e := &event.Event{Type: typ, CreatedAt: start.Add(10 * time.Minute)}
		if err := events.Create(ctx, e); err != nil {
			t.Fatalf("create event: %v", err)
		}
	}

	report, err := svc.SummarizeWindow(ctx, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "fire: 2") {
		t.Errorf("expected fire count in report, got:\n%s", report)
	}
	if !strings.Contains(report, "unknown face: 1") {
		t.Errorf("expected unknown face count in report, got:\n%s", report)
	}

	again, err := svc.SummarizeWindow(ctx, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != again {
		t.Error("expected deterministic report for the same window")
	}
}

func TestService_SummarizeWindow_Empty(t *testing.T) {
	svc, _, _ := setupService(t, "")

	report, err := svc.SummarizeWindow(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "No alerts were raised") {
		t.Errorf("expected quiet-window wording, got:\n%s", report)
	}
}

func TestService_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"Quiet patrol, nothing needs attention."}}`))
	}))
	defer srv.Close()

	svc, store, _ := setupService(t, srv.URL)
	ctx := context.Background()

	if _, err := svc.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := svc.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sess.AnalysisState != event.StatePending {
		t.Errorf("expected pending analysis, got %s", sess.AnalysisState)
	}

	analyzed, outcome, err := svc.Analyze(ctx, sess.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if outcome != event.OutcomeAnalyzed {
		t.Fatalf("expected analyzed, got %s", outcome)
	}
	if analyzed.Analysis != "Quiet patrol, nothing needs attention." {
		t.Errorf("unexpected analysis %q", analyzed.Analysis)
	}
	if analyzed.AnalyzedAt == nil {
		t.Error("expected analyzed_at to be set")
	}
	if analyzed.AnalysisState != event.StateSucceeded {
		t.Errorf("expected succeeded, got %s", analyzed.AnalysisState)
	}

	saved, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Analysis == "" {
		t.Error("expected analysis to be persisted")
	}
	if saved.AnalysisState != event.StateSucceeded {
		t.Errorf("expected persisted state succeeded, got %s", saved.AnalysisState)
	}
}

func TestService_Analyze_SucceededIsNoOp(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"First verdict."}}`))
	}))
	defer srv.Close()

	svc, _, _ := setupService(t, srv.URL)
	ctx := context.Background()

	if _, err := svc.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := svc.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	if _, outcome, err := svc.Analyze(ctx, sess.ID); err != nil || outcome != event.OutcomeAnalyzed {
		t.Fatalf("first analyze: outcome=%s err=%v", outcome, err)
	}

	again, outcome, err := svc.Analyze(ctx, sess.ID)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if outcome != event.OutcomeAlreadyAnalyzed {
		t.Fatalf("expected already_analyzed, got %s", outcome)
	}
	if again.Analysis != "First verdict." {
		t.Error("succeeded analysis must not be overwritten")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected one analyzer call, got %d", n)
	}
}

func TestService_Analyze_UnavailableIsRecorded(t *testing.T) {
	svc, store, _ := setupService(t, "http://127.0.0.1:1")
	ctx := context.Background()

	if _, err := svc.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := svc.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	_, outcome, err := svc.Analyze(ctx, sess.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if outcome != event.OutcomeUnavailable {
		t.Fatalf("expected unavailable, got %s", outcome)
	}

	saved, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.AnalysisState != event.StateUnavailable {
		t.Errorf("expected recorded unavailable state, got %s", saved.AnalysisState)
	}

	// The failed attempt stays retryable.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"Back online."}}`))
	}))
	defer srv.Close()
	svc2, _, _ := setupService(t, srv.URL)
	svc2.store = store

	retried, outcome, err := svc2.Analyze(ctx, sess.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome != event.OutcomeAnalyzed {
		t.Fatalf("expected analyzed on retry, got %s", outcome)
	}
	if retried.AnalysisState != event.StateSucceeded {
		t.Errorf("expected succeeded after retry, got %s", retried.AnalysisState)
	}
}

func TestService_Analyze_UnconfiguredSkips(t *testing.T) {
	svc, store, _ := setupService(t, "")
	ctx := context.Background()

	if _, err := svc.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := svc.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	_, outcome, err := svc.Analyze(ctx, sess.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if outcome != event.OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}

	saved, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.AnalysisState != event.StateSkipped {
		t.Errorf("expected recorded skipped state, got %s", saved.AnalysisState)
	}
}

func TestStore_CreatePath_DuplicateName(t *testing.T) {
	_, store, _ := setupService(t, "")
	ctx := context.Background()

	p := &Path{Name: "perimeter", Steps: shared.StringSlice{"gate"}}
	if err := store.CreatePath(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &Path{Name: "perimeter", Steps: shared.StringSlice{"dock"}}
	if err := store.CreatePath(ctx, dup); !errors.Is(err, shared.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestValidSlot(t *testing.T) {
	valid := []string{"00:00", "09:30", "23:59"}
	for _, s := range valid {
		if !validSlot(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	invalid := []string{"24:00", "12:60", "9:30", "12-30", "noon", ""}
	for _, s := range invalid {
		if validSlot(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
