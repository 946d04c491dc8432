package media

import (
	"context"
	"errors"
	"time"

	"github.com/aura-rover/aura-backend/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	latestFrameKey = "media:frame:latest"

	defaultFrameTTL = 5 * time.Minute
	eventImageTTL   = 30 * 24 * time.Hour
)

// Store keeps image bytes in redis: the rover's latest camera frame
// (short TTL), per-event snapshots, and per-person reference photos.
type Store struct {
	redis    *redis.Client
	frameTTL time.Duration
}

func NewStore(redisClient *redis.Client, frameTTL time.Duration) *Store {
	if frameTTL == 0 {
		frameTTL = defaultFrameTTL
	}
	return &Store{
		redis:    redisClient,
		frameTTL: frameTTL,
	}
}

// SetLatestFrame replaces the most recent camera frame.
func (s *Store) SetLatestFrame(ctx context.Context, data []byte) error {
	return s.redis.Set(ctx, latestFrameKey, data, s.frameTTL).Err()
}

// LatestFrame returns the most recent camera frame, or ErrNotFound when
// none was captured recently.
func (s *Store) LatestFrame(ctx context.Context) ([]byte, error) {
	return s.get(ctx, latestFrameKey)
}

// SaveEventImage stores the snapshot attached to an event.
func (s *Store) SaveEventImage(ctx context.Context, eventID string, data []byte) error {
	return s.redis.Set(ctx, eventImageKey(eventID), data, eventImageTTL).Err()
}

// EventImage returns the snapshot stored for an event.
func (s *Store) EventImage(ctx context.Context, eventID string) ([]byte, error) {
	return s.get(ctx, eventImageKey(eventID))
}

// SavePersonPhoto stores a person's reference photo. Reference photos
// never expire; they are removed explicitly when the person is deleted.
func (s *Store) SavePersonPhoto(ctx context.Context, personID string, data []byte) error {
	return s.redis.Set(ctx, personPhotoKey(personID), data, 0).Err()
}

// PersonPhoto returns a person's reference photo.
func (s *Store) PersonPhoto(ctx context.Context, personID string) ([]byte, error) {
	return s.get(ctx, personPhotoKey(personID))
}

// DeletePersonPhoto removes a person's reference photo.
func (s *Store) DeletePersonPhoto(ctx context.Context, personID string) error {
	return s.redis.Del(ctx, personPhotoKey(personID)).Err()
}

// HasPersonPhoto reports whether a reference photo exists without
// fetching the bytes.
func (s *Store) HasPersonPhoto(ctx context.Context, personID string) bool {
	n, err := s.redis.Exists(ctx, personPhotoKey(personID)).Result()
	return err == nil && n > 0
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	return data, err
}

func eventImageKey(eventID string) string {
	return "media:event:" + eventID
}

func personPhotoKey(personID string) string {
	return "media:person:" + personID
}
