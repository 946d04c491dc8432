package roverlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aura-rover/aura-backend/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "roverlog"),
	}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Entry{})
}

// Create persists an entry and reports failure to the caller. Handlers
// use this; internal flows use Append.
func (s *Store) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = shared.NewID("log_")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Level == "" {
		e.Level = "info"
	}
	return s.db.WithContext(ctx).Create(e).Error
}

// Append is the fire-and-forget variant: persistence failure is logged
// and swallowed because logging must never abort a primary flow.
func (s *Store) Append(ctx context.Context, level, source, category, message string, data shared.JSONMap) {
	if message == "" {
		return
	}
	e := &Entry{
		Level:    level,
		Source:   source,
		Category: category,
		Message:  message,
		Data:     data,
	}
	if err := s.Create(ctx, e); err != nil {
		s.logger.Warn("failed to persist log entry", "error", err, "category", category)
	}
}

// Recent returns up to limit entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []*Entry
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// LastByCategory returns the newest entry in a category.
func (s *Store) LastByCategory(ctx context.Context, category string) (*Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).
		Where("category = ?", category).
		Order("created_at DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &e, err
}

// CountByCategory returns per-category entry counts inside [start, end].
func (s *Store) CountByCategory(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	type row struct {
		Category string
		N        int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Select("category, count(*) as n").
		Where("created_at >= ? AND created_at <= ? AND category <> ''", start, end).
		Group("category").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Category] = r.N
	}
	return counts, nil
}

// CountSince returns the number of entries newer than t.
func (s *Store) CountSince(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("created_at >= ?", t).
		Count(&n).Error
	return n, err
}
