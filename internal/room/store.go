package room

import (
	"context"
	"encoding/json"
)

// Store is the durable key-value store a room actor persists into.
// Implementations: repo.SQLStore, repo.RedisStore.
type Store interface {
	// Get returns found=false (and a nil error) when key was never written.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put fully overwrites key.
	Put(ctx context.Context, key string, value []byte) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Retention thresholds of the history ledger. Once an append pushes the
// ledger past HistoryHighWater entries it is cut back to the most recent
// HistoryKeep entries; below that nothing is dropped.
const (
	HistoryHighWater = 10000
	HistoryKeep      = 100
)

// MessagesKey is the storage key of a room's history ledger.
func MessagesKey(roomID string) string { return "messages:" + roomID }

// DataKey is the storage key of a room's opaque blob.
func DataKey(roomID string) string { return "data:" + roomID }

// appendWithRetention appends entry to history and applies the sawtooth
// retention policy. It reports whether the ledger was truncated.
func appendWithRetention(history []json.RawMessage, entry json.RawMessage) ([]json.RawMessage, bool) {
	history = append(history, entry)
	if len(history) <= HistoryHighWater {
		return history, false
	}
	kept := make([]json.RawMessage, HistoryKeep)
	copy(kept, history[len(history)-HistoryKeep:])
	return kept, true
}

// decodeHistory parses a stored ledger. Entries stay raw so previously
// stored messages are written back byte for byte.
func decodeHistory(b []byte) ([]json.RawMessage, error) {
	var history []json.RawMessage
	if err := json.Unmarshal(b, &history); err != nil {
		return nil, err
	}
	return history, nil
}
