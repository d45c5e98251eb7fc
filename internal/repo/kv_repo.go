// Package repo implements the persistence layer of the relay. This file
// provides the SQL-backed durable key-value store: one row per key in
// kv_entries, full overwrite on every put.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-room-relay/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// GetValue returns the stored value for key, or ErrNotFound.
func GetValue(ctx context.Context, db *gorm.DB, key string) ([]byte, error) {
	var e domain.KVEntry
	err := db.WithContext(ctx).Where("key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// PutValue upserts key with value, replacing any previous value.
func PutValue(ctx context.Context, db *gorm.DB, key string, value []byte) error {
	e := domain.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}

// SQLStore adapts GetValue/PutValue to the room store contract.
type SQLStore struct {
	DB *gorm.DB
}

// NewSQLStore returns a store over db. The kv_entries table must exist
// (see AutoMigrate).
func NewSQLStore(db *gorm.DB) *SQLStore { return &SQLStore{DB: db} }

// Get reports found=false (and no error) when key was never written.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := GetValue(ctx, s.DB, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put overwrites key.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	return PutValue(ctx, s.DB, key, value)
}

// Ping checks the underlying connection pool.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
