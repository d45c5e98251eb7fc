// Package handlers defines the error codes the HTTP layer logs alongside
// failed requests.
//
// Clients only see the {"error": message} body; the codes below are attached
// to server-side log lines (see fail in response.go) so failures can be
// grouped without parsing messages.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Relay-specific:
	ErrCodeProtocol       = "expected_websocket"
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeIngestFailed   = "ingest_failed"
	ErrCodeStoreFailed    = "store_failed"
	ErrCodeFetchFailed    = "fetch_failed"
)
