package patrol

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aura-rover/aura-backend/internal/event"
	"github.com/aura-rover/aura-backend/internal/shared"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Path{}, &Session{})
}

func (s *Store) CreatePath(ctx context.Context, p *Path) error {
	if _, err := s.GetPathByName(ctx, p.Name); err == nil {
		return shared.ErrConflict
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if p.ID == "" {
		p.ID = shared.NewID("path_")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetPath(ctx context.Context, id string) (*Path, error) {
	var p Path
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPathByName(ctx context.Context, name string) (*Path, error) {
	var p Path
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPaths(ctx context.Context) ([]Path, error) {
	var paths []Path
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&paths).Error
	return paths, err
}

func (s *Store) UpdatePath(ctx context.Context, p *Path) error {
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *Store) DeletePath(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Path{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = shared.NewID("patrol_")
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.Status == "" {
		sess.Status = StatusActive
	}
	if sess.AnalysisState == "" {
		sess.AnalysisState = event.StatePending
	}
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	return s.db.WithContext(ctx).Save(sess).Error
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ActiveSession returns the currently running patrol, if any.
func (s *Store) ActiveSession(ctx context.Context) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Order("started_at DESC").
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (s *Store) CountSessionsBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("started_at >= ? AND started_at < ?", start, end).
		Count(&n).Error
	return n, err
}
