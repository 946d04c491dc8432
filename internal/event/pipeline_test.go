package event

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aura-rover/aura-backend/internal/analyzer"
	"github.com/aura-rover/aura-backend/internal/feed"
	"github.com/aura-rover/aura-backend/internal/media"
	"github.com/aura-rover/aura-backend/internal/notifier"
	"github.com/aura-rover/aura-backend/internal/roverlog"
	"github.com/aura-rover/aura-backend/internal/telegram"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupPipeline wires a pipeline against in-memory storage, a fake
// analyzer endpoint and an unconfigured notifier.
func setupPipeline(t *testing.T, analyzerURL string) (*Pipeline, *Store, *media.Store) {
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
	logs := roverlog.NewStore(db, discard())
	if err := logs.Migrate(); err != nil {
		t.Fatalf("log migration failed: %v", err)
	}

	mr := miniredis.RunT(t)
	mediaStore := media.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)

	an := analyzer.NewClient(analyzer.Config{BaseURL: analyzerURL, Model: "llava", Timeout: 2 * time.Second})
	n := notifier.New(telegram.NewClient(telegram.Config{}), discard())
	hub := feed.NewHub(discard())

	return NewPipeline(store, mediaStore, an, n, hub, logs, discard()), store, mediaStore
}

func fakeAnalyzer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"` + content + `"}}`))
	}))
}

func TestPipeline_Create_PersistsAndStoresImage(t *testing.T) {
	p, store, mediaStore := setupPipeline(t, "")
	ctx := context.Background()

	e := p.Create(ctx, Trigger{
		Type:   TypeUnknownFace,
		Source: "camera",
		Image:  []byte("jpeg-bytes"),
	})
	if e.ID == "" {
		t.Fatal("expected event id")
	}
	if !e.HasImage {
		t.Error("expected has_image")
	}
	if e.State != StatePending {
		t.Errorf("expected pending, got %s", e.State)
	}

	saved, err := store.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("event not persisted: %v", err)
	}
	if saved.Type != TypeUnknownFace {
		t.Errorf("unexpected type %s", saved.Type)
	}

	img, err := mediaStore.EventImage(ctx, e.ID)
	if err != nil {
		t.Fatalf("event image not stored: %v", err)
	}
	if string(img) != "jpeg-bytes" {
		t.Error("stored image does not match")
	}
}

func TestPipeline_Create_SurvivesStorageFailure(t *testing.T) {
	p, store, _ := setupPipeline(t, "")

	store.db.Exec("DROP TABLE events")

	e := p.Create(context.Background(), Trigger{Type: TypeFire, Source: "sensor"})
	if e == nil || e.ID == "" {
		t.Fatal("expected an event even when persistence fails")
	}
}

func TestPipeline_Enrich_Succeeds(t *testing.T) {
	srv := fakeAnalyzer(t, "A stranger stands by the gate. Nothing else moves.")
	defer srv.Close()

	p, store, _ := setupPipeline(t, srv.URL)
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeUnknownFace, Image: []byte("frame")})
	outcome := p.Enrich(ctx, e)
	if outcome != OutcomeAnalyzed {
		t.Fatalf("expected analyzed, got %s", outcome)
	}
	if e.State != StateSucceeded {
		t.Errorf("expected succeeded, got %s", e.State)
	}
	if e.ShortSummary != "A stranger stands by the gate." {
		t.Errorf("unexpected short summary %q", e.ShortSummary)
	}
	if e.LongSummary == "" || e.AnalyzedAt == nil || e.AnalyzerModel != "llava" {
		t.Error("expected analysis fields to be populated")
	}

	saved, err := store.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.State != StateSucceeded {
		t.Errorf("expected persisted state succeeded, got %s", saved.State)
	}
}

func TestPipeline_Enrich_UnconfiguredSkips(t *testing.T) {
	p, _, _ := setupPipeline(t, "")
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeGas})
	if outcome := p.Enrich(ctx, e); outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	if e.State != StateSkipped {
		t.Errorf("expected skipped state, got %s", e.State)
	}
}

func TestPipeline_Enrich_UnreachableIsUnavailable(t *testing.T) {
	p, _, _ := setupPipeline(t, "http://127.0.0.1:1")
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeFire})
	if outcome := p.Enrich(ctx, e); outcome != OutcomeUnavailable {
		t.Fatalf("expected unavailable, got %s", outcome)
	}
	if e.State != StateUnavailable {
		t.Errorf("expected unavailable state, got %s", e.State)
	}
}

func TestPipeline_Enrich_ProtocolErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p, _, _ := setupPipeline(t, srv.URL)
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeFire})
	if outcome := p.Enrich(ctx, e); outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if e.State != StateFailed {
		t.Errorf("expected failed state, got %s", e.State)
	}
}

func TestPipeline_Enrich_SucceededIsNoOp(t *testing.T) {
	srv := fakeAnalyzer(t, "First answer.")
	defer srv.Close()

	p, _, _ := setupPipeline(t, srv.URL)
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeManual})
	if outcome := p.Enrich(ctx, e); outcome != OutcomeAnalyzed {
		t.Fatalf("first enrich: %s", outcome)
	}
	if outcome := p.Enrich(ctx, e); outcome != OutcomeAlreadyAnalyzed {
		t.Fatalf("expected already_analyzed, got %s", outcome)
	}
	if e.ShortSummary != "First answer." {
		t.Error("succeeded analysis must not be overwritten")
	}
}

func TestPipeline_Enrich_TerminalNeedsManualTrigger(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"All clear."}}`))
	}))
	defer srv.Close()

	p, store, _ := setupPipeline(t, srv.URL)
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeFire})
	e.State = StateFailed
	if err := store.Update(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}

	if outcome := p.Enrich(ctx, e); outcome != OutcomeFailed {
		t.Fatalf("expected failed without a fresh attempt, got %s", outcome)
	}
	if e.State != StateFailed {
		t.Errorf("expected state untouched, got %s", e.State)
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("expected no analyzer call, got %d", n)
	}

	reanalyzed, outcome, err := p.Reanalyze(ctx, e.ID)
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if outcome != OutcomeAnalyzed {
		t.Fatalf("expected analyzed after manual trigger, got %s", outcome)
	}
	if reanalyzed.State != StateSucceeded {
		t.Errorf("expected succeeded, got %s", reanalyzed.State)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected one analyzer call, got %d", n)
	}
}

func TestPipeline_Reanalyze_RetriesAfterUnavailable(t *testing.T) {
	p, store, _ := setupPipeline(t, "http://127.0.0.1:1")
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeFire})
	if outcome := p.Enrich(ctx, e); outcome != OutcomeUnavailable {
		t.Fatalf("first enrich: %s", outcome)
	}

	srv := fakeAnalyzer(t, "Back online.")
	defer srv.Close()
	p2, _, _ := setupPipeline(t, srv.URL)
	p2.store = store

	loaded, outcome, err := p2.Reanalyze(ctx, e.ID)
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if outcome != OutcomeAnalyzed {
		t.Fatalf("expected analyzed on retry, got %s", outcome)
	}
	if loaded.State != StateSucceeded {
		t.Errorf("expected succeeded, got %s", loaded.State)
	}
}

func TestPipeline_Reanalyze_SucceededIsNoOp(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"role":"assistant","content":"First answer."}}`))
	}))
	defer srv.Close()

	p, _, _ := setupPipeline(t, srv.URL)
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeManual})
	if outcome := p.Enrich(ctx, e); outcome != OutcomeAnalyzed {
		t.Fatalf("first enrich: %s", outcome)
	}

	again, outcome, err := p.Reanalyze(ctx, e.ID)
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if outcome != OutcomeAlreadyAnalyzed {
		t.Fatalf("expected already_analyzed, got %s", outcome)
	}
	if again.ShortSummary != "First answer." {
		t.Error("succeeded analysis must not be overwritten")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected one analyzer call, got %d", n)
	}
}

func TestPipeline_Notify_DoesNotMutateState(t *testing.T) {
	p, _, _ := setupPipeline(t, "")
	ctx := context.Background()

	e := p.Create(ctx, Trigger{Type: TypeFire, Source: "sensor"})
	before := e.State

	// Notifier is unconfigured, so delivery reports false.
	if p.Notify(ctx, e) {
		t.Error("expected delivery to fail with unconfigured notifier")
	}
	if e.State != before {
		t.Error("notification must not change event state")
	}
}

func TestPipeline_Process_SkipEnrichment(t *testing.T) {
	srv := fakeAnalyzer(t, "should not be called")
	defer srv.Close()

	p, _, _ := setupPipeline(t, srv.URL)

	e := p.Process(context.Background(), Trigger{Type: TypeGas, SkipEnrichment: true})
	if e.State != StateSkipped {
		t.Errorf("expected skipped, got %s", e.State)
	}
	if e.ShortSummary != "" {
		t.Error("expected no analysis")
	}
}

func TestPipeline_Reanalyze_NotFound(t *testing.T) {
	p, _, _ := setupPipeline(t, "")

	if _, _, err := p.Reanalyze(context.Background(), "evt_missing"); err == nil {
		t.Fatal("expected error for missing event")
	}
}

func TestFirstSentence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"One. Two.", "One."},
		{"No terminator here", "No terminator here"},
		{"  Trimmed. ", "Trimmed."},
		{"Is it safe? Maybe.", "Is it safe?"},
	}
	for _, tt := range tests {
		if got := firstSentence(tt.in); got != tt.want {
			t.Errorf("firstSentence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
