package event

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aura-rover/aura-backend/internal/shared"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Event{})
}

func (s *Store) Create(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = shared.NewID("evt_")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.State == "" {
		e.State = StatePending
	}
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *Store) Update(ctx context.Context, e *Event) error {
	return s.db.WithContext(ctx).Save(e).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Event, error) {
	var e Event
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// LatestAnalyzed returns the most recent event whose enrichment
// succeeded, used by the "last AI result" surfaces.
func (s *Store) LatestAnalyzed(ctx context.Context) (*Event, error) {
	var e Event
	err := s.db.WithContext(ctx).
		Where("state = ?", StateSucceeded).
		Order("created_at DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) LatestByType(ctx context.Context, t Type) (*Event, error) {
	var e Event
	err := s.db.WithContext(ctx).
		Where("type = ?", t).
		Order("created_at DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Between(ctx context.Context, start, end time.Time) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

func (s *Store) CountByType(ctx context.Context, start, end time.Time) (map[Type]int64, error) {
	type row struct {
		Type  Type
		Count int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&Event{}).
		Select("type, COUNT(*) as count").
		Where("created_at >= ? AND created_at < ?", start, end).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[Type]int64, len(rows))
	for _, r := range rows {
		counts[r.Type] = r.Count
	}
	return counts, nil
}

func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&Event{}).
		Where("created_at >= ?", since).
		Count(&n).Error
	return n, err
}
