package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-room-relay/internal/domain"
)

func newKVDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.KVEntry{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestGetValue_Missing_ReturnsErrNotFound(t *testing.T) {
	db := newKVDB(t)
	v, err := GetValue(context.Background(), db, "data:nope")
	if v != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound), got (%q, %v)", v, err)
	}
}

func TestPutValue_OverwritesWholeValue(t *testing.T) {
	db := newKVDB(t)
	ctx := context.Background()

	if err := PutValue(ctx, db, "data:r1", []byte(`{"a":1,"b":2}`)); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := PutValue(ctx, db, "data:r1", []byte(`{"c":3}`)); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err := GetValue(ctx, db, "data:r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"c":3}` {
		t.Fatalf("expected full replacement, got %s", got)
	}

	var n int64
	db.Model(&domain.KVEntry{}).Where("key = ?", "data:r1").Count(&n)
	if n != 1 {
		t.Fatalf("expected a single row per key, got %d", n)
	}
}

func TestSQLStore_GetPutPing(t *testing.T) {
	s := NewSQLStore(newKVDB(t))
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "messages:r1"); err != nil || found {
		t.Fatalf("expected not found without error, got found=%v err=%v", found, err)
	}
	if err := s.Put(ctx, "messages:r1", []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, found, err := s.Get(ctx, "messages:r1")
	if err != nil || !found || string(v) != `[]` {
		t.Fatalf("unexpected get: v=%s found=%v err=%v", v, found, err)
	}
	// keys are independent
	if _, found, _ := s.Get(ctx, "data:r1"); found {
		t.Fatalf("data key must not alias messages key")
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSQLStore_Get_PropagatesDBErrors(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := NewSQLStore(db) // table intentionally missing

	if _, found, err := s.Get(context.Background(), "k"); err == nil || found {
		t.Fatalf("expected error for missing table, got found=%v err=%v", found, err)
	}
	if err := s.Put(context.Background(), "k", []byte(`1`)); err == nil {
		t.Fatalf("expected put error for missing table")
	}
}
