// Package services holds the relay's use-cases: opening room sessions,
// ingesting webhooks, storing room blobs and deduplicating webhook retries.
// This file centralizes the service-level error values so handlers can map
// them to HTTP results consistently.
//
// Translation into status codes and response bodies belongs to the handler
// layer.
package services

import "errors"

var (
	// ErrProtocol is returned by Connect when the request is not a
	// WebSocket upgrade.
	ErrProtocol = errors.New("expected websocket upgrade")

	// ErrInvalidPayload is returned when a request body is not the JSON the
	// operation requires.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNotFound is returned by FetchBlob when the room has no stored blob.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRoom is returned when the room id is empty.
	ErrInvalidRoom = errors.New("room id is required")
)
