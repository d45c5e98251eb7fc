// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for webhook deliveries. Upstream
// platforms retry on timeouts, so a delivery may arrive more than once. The
// middleware validates an optional Idempotency-Key header, asks a lookup
// whether the room already accepted that key, and annotates the request so
// downstream handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed deliveries (IsReplay)
//   - bypass rate limiting when a replay is acknowledged (via an internal flag)
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the delivery key.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: key already accepted for this room
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found the key already accepted for the
// room in the request path.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation for IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, ^[A-Za-z0-9._~\-:]+$ is used.
	Pattern *regexp.Regexp
	// RoomParam names the path parameter holding the room id. Defaults to "id".
	RoomParam string
}

// IdempotencyLookup reports whether key was already accepted for roomID and
// is still within its TTL at now. Errors do not block the request.
type IdempotencyLookup func(ctx context.Context, roomID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the request context and, when lookup is non-nil, marks
// replays.
//
// Behavior:
//   - If the header is absent: no-op.
//   - If the header fails validation: 400 {"error":"Invalid Idempotency-Key"}.
//   - If lookup reports a hit: sets the replay and rate-bypass flags.
//
// The middleware never answers a replay itself; the handler decides how to
// acknowledge it.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	param := opts.RoomParam
	if param == "" {
		param = "id"
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid Idempotency-Key"})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			roomID := c.Param(param)
			if roomID != "" {
				if exists, _ := lookup(c.Request.Context(), roomID, key, time.Now().UTC()); exists {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}

		c.Next()
	}
}
