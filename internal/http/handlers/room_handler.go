// Room HTTP handlers.
//
// This file exposes the room-scoped endpoints:
//   - GET  /room/{id}/connect        (WebSocket upgrade into the room)
//   - POST /webhook/room/{id}        (ingest a platform message and broadcast it)
//   - POST /room/{id}/data           (replace the room's JSON blob)
//   - GET  /room/{id}/data           (read the room's JSON blob)
//   - GET  /room/{id}                (liveness text for the room route)
//
// Handlers are transport-thin: they read the body, delegate to RoomService
// and map service errors to status codes.
//
// Idempotency:
// If an upstream platform supplies an Idempotency-Key header on a webhook
// that this room already accepted, the handler acknowledges it again with
// `Idempotency-Replayed: true` and does not broadcast a second time.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-room-relay/internal/http/middleware"
	"github.com/tbourn/go-room-relay/internal/room"
	"github.com/tbourn/go-room-relay/internal/services"
)

// RoomService is the application contract the room handlers depend on.
type RoomService interface {
	Connect(ctx context.Context, roomID string, header http.Header, accept func() (room.Conn, error)) (*room.Session, error)
	IngestWebhook(ctx context.Context, roomID string, body []byte) (room.Result, error)
	StoreBlob(ctx context.Context, roomID string, body []byte) error
	FetchBlob(ctx context.Context, roomID string) ([]byte, error)
}

// IdempotencyService records accepted webhook keys.
type IdempotencyService interface {
	Seen(ctx context.Context, scope, roomID, key string, now time.Time) (bool, error)
	Remember(ctx context.Context, scope, roomID, key string) error
}

// Options tunes the handlers.
type Options struct {
	// AllowedOrigins restricts the Origin of WebSocket upgrades. Empty allows any.
	AllowedOrigins []string
	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration
}

// Handlers aggregates the services used by the HTTP layer.
type Handlers struct {
	roomSvc  RoomService
	idemSvc  IdempotencyService
	upgrader websocket.Upgrader
}

// New constructs a Handlers instance. idemSvc may be nil to disable webhook
// deduplication.
func New(roomSvc RoomService, idemSvc IdempotencyService, opts Options) *Handlers {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Handlers{
		roomSvc: roomSvc,
		idemSvc: idemSvc,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: opts.HandshakeTimeout,
			CheckOrigin:      originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients) and, when allowed is non-empty, browser origins in the list.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// readBody reads the (size-limited) request body. It reports false after
// writing the error response itself.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "Payload too large")
			return nil, false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid payload")
		return nil, false
	}
	return body, true
}

// Connect godoc
// @ID          connectRoom
// @Summary     Join a room over WebSocket
// @Description Upgrades the connection and registers it as a session of the room.
// @Description Every message later broadcast to the room is sent to it as a JSON text frame.
// @Tags        Rooms
// @Produce     json
//
// @Param       id       path    string  true  "Room ID"                example(lobby)
// @Param       Upgrade  header  string  true  "Must be websocket"      example(websocket)
//
// @Success     101  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "Expected WebSocket"
// @Failure     503  {object}  handlers.ErrorResponse  "Shutting down"
// @Router      /room/{id}/connect [get]
func (h *Handlers) Connect(c *gin.Context) {
	roomID := c.Param("id")
	upgraded := false

	_, err := h.roomSvc.Connect(c.Request.Context(), roomID, c.Request.Header, func() (room.Conn, error) {
		upgraded = true
		return h.upgrader.Upgrade(c.Writer, c.Request, nil)
	})
	if err == nil {
		return
	}
	if upgraded {
		// the upgrader already answered the handshake (or hijacked the socket)
		middleware.LoggerFrom(c).Warn().Err(err).Str("room_id", roomID).Msg("websocket connect failed")
		c.Abort()
		return
	}
	switch {
	case errors.Is(err, services.ErrProtocol), errors.Is(err, services.ErrInvalidRoom):
		fail(c, http.StatusBadRequest, ErrCodeProtocol, "Expected WebSocket")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal error")
	}
}

// Webhook godoc
// @ID          roomWebhook
// @Summary     Ingest a platform message
// @Description Broadcasts the message to every session connected to the room and appends it to the room history.
// @Description Missing sender defaults to "webhook"; missing media links are stored as empty strings.
// @Description Supports idempotency via the Idempotency-Key header (a repeated key is acknowledged once).
// @Tags        Rooms
// @Accept      json
// @Produce     json
//
// @Param       id               path    string                   true   "Room ID"  example(lobby)
// @Param       Idempotency-Key  header  string                   false  "Idempotency key for upstream retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    domain.WebhookPayload    true   "Webhook payload"
//
// @Success     200  {object}  handlers.SuccessResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     413  {object}  handlers.ErrorResponse  "Payload too large"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhook/room/{id} [post]
func (h *Handlers) Webhook(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idemSvc != nil {
		replay := middleware.IsReplay(c)
		if !replay {
			replay, _ = h.idemSvc.Seen(ctx, services.ScopeWebhook, roomID, idemKey, time.Now().UTC())
		}
		if replay {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, SuccessResponse{Success: true})
			return
		}
	}

	body, okBody := readBody(c)
	if !okBody {
		return
	}

	if _, err := h.roomSvc.IngestWebhook(ctx, roomID, body); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload), errors.Is(err, services.ErrInvalidRoom):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "Invalid payload")
		case errors.Is(err, room.ErrHubClosed):
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "Shutting down")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, "Internal error")
		}
		return
	}

	if idemKey != "" && h.idemSvc != nil {
		if err := h.idemSvc.Remember(ctx, services.ScopeWebhook, roomID, idemKey); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("room_id", roomID).Msg("idempotency record failed")
		}
	}

	ok(c, http.StatusOK, SuccessResponse{Success: true})
}

// StoreData godoc
// @ID          storeRoomData
// @Summary     Replace the room's JSON blob
// @Description Stores any JSON value (object, array, scalar or null) for the room, replacing the previous one.
// @Tags        Rooms
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Room ID"     example(lobby)
// @Param       body  body  object  true  "Any JSON value"
//
// @Success     200  {object}  handlers.SuccessResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid JSON"
// @Failure     413  {object}  handlers.ErrorResponse  "Payload too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /room/{id}/data [post]
func (h *Handlers) StoreData(c *gin.Context) {
	roomID := c.Param("id")

	body, okBody := readBody(c)
	if !okBody {
		return
	}
	if err := h.roomSvc.StoreBlob(c.Request.Context(), roomID, body); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload), errors.Is(err, services.ErrInvalidRoom):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "Invalid JSON")
		case errors.Is(err, room.ErrHubClosed):
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "Shutting down")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, "Internal error")
		}
		return
	}
	ok(c, http.StatusOK, SuccessResponse{Success: true})
}

// FetchData godoc
// @ID          fetchRoomData
// @Summary     Read the room's JSON blob
// @Description Returns the JSON value last stored for the room, exactly as stored.
// @Tags        Rooms
// @Produce     json
//
// @Param       id  path  string  true  "Room ID"  example(lobby)
//
// @Success     200  {object}  object  "Stored JSON value"
// @Failure     404  {object}  handlers.ErrorResponse  "No data found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /room/{id}/data [get]
func (h *Handlers) FetchData(c *gin.Context) {
	blob, err := h.roomSvc.FetchBlob(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrInvalidRoom):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "No data found")
		case errors.Is(err, room.ErrHubClosed):
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "Shutting down")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeFetchFailed, "Internal error")
		}
		return
	}
	c.Data(http.StatusOK, "application/json", blob)
}

// Hello godoc
// @ID          roomHello
// @Summary     Room route liveness
// @Tags        Rooms
// @Produce     plain
// @Param       id  path  string  true  "Room ID"
// @Success     200  {string}  string  "Hello world"
// @Router      /room/{id} [get]
func (h *Handlers) Hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello world")
}
