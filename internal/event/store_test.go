package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aura-rover/aura-backend/internal/shared"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
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
	return store
}

func TestStore_Create_Defaults(t *testing.T) {
	store := setupTestStore(t)

	e := &Event{Type: TypeFire, Source: "sensor"}
	if err := store.Create(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if e.State != StatePending {
		t.Errorf("expected pending state, got %s", e.State)
	}
	if e.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetByID(context.Background(), "evt_missing")
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Recent_Order(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		e := &Event{Type: TypeGas, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	events, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].CreatedAt.After(events[1].CreatedAt) {
		t.Error("expected newest first")
	}
}

func TestStore_LatestAnalyzed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	if _, err := store.LatestAnalyzed(ctx); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound on empty store, got %v", err)
	}

	older := &Event{Type: TypeFire, State: StateSucceeded, ShortSummary: "older", CreatedAt: base}
	newerFailed := &Event{Type: TypeFire, State: StateFailed, CreatedAt: base.Add(10 * time.Minute)}
	newest := &Event{Type: TypeGas, State: StateSucceeded, ShortSummary: "newest", CreatedAt: base.Add(20 * time.Minute)}
	for _, e := range []*Event{older, newerFailed, newest} {
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.LatestAnalyzed(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ShortSummary != "newest" {
		t.Errorf("expected newest succeeded event, got %q", got.ShortSummary)
	}
}

func TestStore_LatestByType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, typ := range []Type{TypeFire, TypeGas, TypeFire} {
		e := &Event{Type: typ, Source: "sensor", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.LatestByType(ctx, TypeFire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Error("expected the most recent fire event")
	}

	if _, err := store.LatestByType(ctx, TypeManual); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_CountByType_Window(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	inWindow := []Type{TypeFire, TypeFire, TypeGas}
	for i, typ := range inWindow {
		e := &Event{Type: typ, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	outside := &Event{Type: TypeFire, CreatedAt: base.Add(-time.Hour)}
	if err := store.Create(ctx, outside); err != nil {
		t.Fatalf("create: %v", err)
	}

	counts, err := store.CountByType(ctx, base, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[TypeFire] != 2 || counts[TypeGas] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestStore_Between_AscendingOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 2; i >= 0; i-- {
		e := &Event{Type: TypeManual, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	events, err := store.Between(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt.Before(events[i-1].CreatedAt) {
			t.Fatal("expected ascending order")
		}
	}
}
