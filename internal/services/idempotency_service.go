// Package services – IdempotencyService
//
// IdempotencyService remembers which webhook deliveries (by Idempotency-Key)
// a room has already accepted, so upstream retries are acknowledged without
// being broadcast or appended to history a second time.
package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-room-relay/internal/repo"
)

// ScopeWebhook namespaces keys recorded for POST /webhook/room/{id}.
const ScopeWebhook = "webhook"

// IdempotencyService records and looks up accepted idempotency keys.
type IdempotencyService struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// NewIdempotencyService returns a service keeping keys for ttl (24h if <= 0).
func NewIdempotencyService(db *gorm.DB, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{DB: db, TTL: ttl, Now: time.Now}
}

func (s *IdempotencyService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Seen reports whether key was already accepted for (scope, roomID) and has
// not expired. It matches the middleware.IdempotencyLookup signature.
func (s *IdempotencyService) Seen(ctx context.Context, scope, roomID, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, scope, roomID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remember records key as accepted. Recording the same key twice is not an
// error: a concurrent retry may have won the race.
func (s *IdempotencyService) Remember(ctx context.Context, scope, roomID, key string) error {
	if key == "" {
		return nil
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, scope, roomID, key, http.StatusOK, s.TTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Purge removes expired keys and returns how many were deleted.
func (s *IdempotencyService) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, s.now())
}
