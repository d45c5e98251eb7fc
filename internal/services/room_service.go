// Package services – RoomService
//
// This file implements RoomService, the application-level entry point for
// everything addressed to a room: admitting WebSocket sessions, turning
// webhook deliveries into broadcast messages, and reading or replacing the
// room's opaque JSON blob. Per-room ordering and persistence live in the
// room hub; this layer validates input and applies the webhook defaulting
// policy.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the room identifier.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-room-relay/internal/domain"
	"github.com/tbourn/go-room-relay/internal/room"
)

// RoomHub is the subset of *room.Hub used by RoomService.
type RoomHub interface {
	Connect(ctx context.Context, roomID string, conn room.Conn) (*room.Session, error)
	Broadcast(ctx context.Context, roomID string, msg domain.Message) (room.Result, error)
	StoreBlob(ctx context.Context, roomID string, value []byte) error
	FetchBlob(ctx context.Context, roomID string) ([]byte, bool, error)
	Ping(ctx context.Context) error
}

var _ RoomHub = (*room.Hub)(nil)

// RoomService coordinates room sessions, webhook ingest and blob storage.
type RoomService struct {
	Hub RoomHub
}

// NewRoomService constructs a RoomService over hub.
func NewRoomService(hub RoomHub) *RoomService {
	return &RoomService{Hub: hub}
}

var tracer = otel.Tracer("services/room")

func startSpan(ctx context.Context, name, roomID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("room.id", roomID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IsWebSocketUpgrade reports whether header asks for a WebSocket upgrade.
// The Upgrade value is compared case-insensitively.
func IsWebSocketUpgrade(header http.Header) bool {
	for _, v := range header.Values("Upgrade") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "websocket") {
				return true
			}
		}
	}
	return false
}

// Connect admits a new session into roomID. accept performs the protocol
// switch and is only called once header has been checked; a request that is
// not an upgrade returns ErrProtocol without touching the room.
func (s *RoomService) Connect(ctx context.Context, roomID string, header http.Header, accept func() (room.Conn, error)) (sess *room.Session, err error) {
	ctx, span := startSpan(ctx, "RoomService.Connect", roomID)
	defer func() { endSpan(span, err) }()

	if roomID == "" {
		return nil, ErrInvalidRoom
	}
	if !IsWebSocketUpgrade(header) {
		return nil, ErrProtocol
	}
	conn, err := accept()
	if err != nil {
		return nil, err
	}
	sess, err = s.Hub.Connect(ctx, roomID, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return sess, nil
}

// IngestWebhook decodes body as a webhook payload, applies the defaulting
// policy and broadcasts the resulting message to roomID.
//
// A nil error means the message was accepted. Persistence or per-session
// delivery problems are reported in the Result, not as an error.
func (s *RoomService) IngestWebhook(ctx context.Context, roomID string, body []byte) (res room.Result, err error) {
	ctx, span := startSpan(ctx, "RoomService.IngestWebhook", roomID)
	defer func() { endSpan(span, err) }()

	if roomID == "" {
		return res, ErrInvalidRoom
	}
	p, err := decodeWebhook(body)
	if err != nil {
		return res, err
	}

	res, err = s.Hub.Broadcast(ctx, roomID, p.ToMessage())
	if err != nil {
		return res, err
	}
	span.SetAttributes(
		attribute.Int("room.delivered", res.Delivered),
		attribute.Bool("room.persisted", res.Persisted),
	)
	if !res.Persisted {
		log.Ctx(ctx).Warn().Str("room_id", roomID).Msg("webhook accepted without history persistence")
	}
	return res, nil
}

// decodeWebhook requires exactly one JSON object; null, arrays, scalars,
// wrongly typed fields and any trailing bytes are rejected.
func decodeWebhook(body []byte) (domain.WebhookPayload, error) {
	var p domain.WebhookPayload
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p, ErrInvalidPayload
	}
	// Unmarshal validates the whole input, so `{...} }` fails here
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return p, ErrInvalidPayload
	}
	return p, nil
}

// StoreBlob validates body as JSON and replaces the room's blob with its
// compacted form. Any JSON value is accepted, null included.
func (s *RoomService) StoreBlob(ctx context.Context, roomID string, body []byte) (err error) {
	ctx, span := startSpan(ctx, "RoomService.StoreBlob", roomID)
	defer func() { endSpan(span, err) }()

	if roomID == "" {
		return ErrInvalidRoom
	}
	if !json.Valid(body) {
		return ErrInvalidPayload
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return ErrInvalidPayload
	}
	return s.Hub.StoreBlob(ctx, roomID, buf.Bytes())
}

// FetchBlob returns the room's stored blob or ErrNotFound.
func (s *RoomService) FetchBlob(ctx context.Context, roomID string) (blob []byte, err error) {
	ctx, span := startSpan(ctx, "RoomService.FetchBlob", roomID)
	defer func() {
		if errors.Is(err, ErrNotFound) {
			span.End()
			return
		}
		endSpan(span, err)
	}()

	if roomID == "" {
		return nil, ErrInvalidRoom
	}
	v, found, err := s.Hub.FetchBlob(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

// Ping reports whether the backing store is reachable.
func (s *RoomService) Ping(ctx context.Context) error {
	return s.Hub.Ping(ctx)
}
