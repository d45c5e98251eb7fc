package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-room-relay/internal/domain"
)

// Result describes one Broadcast. Ingest success does not depend on it.
type Result struct {
	Delivered  int  // sessions the frame was queued to
	Failed     int  // sessions dropped because Send failed
	Stale      int  // sessions found Disconnected and pruned
	Persisted  bool // history ledger written
	HistoryLen int  // ledger length after the write (0 when not persisted)
}

// actor owns one room: its sessions, its history ledger and its blob. All
// state is touched only from loop, so commands for one room never interleave.
type actor struct {
	roomID string
	hub    *Hub
	store  Store
	opts   Options

	queue chan func()
	done  chan struct{}

	sessions map[*Session]struct{}
	log      zerolog.Logger
}

func newActor(h *Hub, roomID string) *actor {
	return &actor{
		roomID:   roomID,
		hub:      h,
		store:    h.store,
		opts:     h.opts,
		queue:    make(chan func(), h.opts.QueueSize),
		done:     make(chan struct{}),
		sessions: make(map[*Session]struct{}),
		log:      log.With().Str("module", "room").Str("room_id", roomID).Logger(),
	}
}

func (a *actor) loop() {
	defer close(a.done)

	idle := time.NewTimer(a.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case fn := <-a.queue:
			fn()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.opts.IdleTimeout)

		case <-idle.C:
			a.pruneDisconnected()
			if len(a.sessions) == 0 && len(a.queue) == 0 && a.hub.evict(a) {
				a.log.Debug().Msg("room actor evicted")
				return
			}
			idle.Reset(a.opts.IdleTimeout)

		case <-a.hub.quit:
			for s := range a.sessions {
				a.remove(s)
				s.Close(websocket.CloseGoingAway, "server shutting down")
			}
			return
		}
	}
}

// call runs fn on the actor goroutine and waits for its result.
func call[T any](ctx context.Context, a *actor, fn func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)

	select {
	case a.queue <- func() { reply <- fn() }:
	case <-a.done:
		return zero, errActorStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-a.done:
		// fn may have run right before the loop exited
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, errActorStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// post enqueues fn without waiting; it is dropped when the queue is full.
func (a *actor) post(fn func()) {
	select {
	case a.queue <- fn:
	case <-a.done:
	default:
	}
}

func (a *actor) attach(s *Session) {
	bound := s.bind(func(s *Session) {
		a.post(func() { a.remove(s) })
	})
	if !bound {
		return
	}
	a.sessions[s] = struct{}{}
	sessionsActive.Inc()
	a.log.Info().Str("session_id", s.ID()).Int("sessions", len(a.sessions)).Msg("session connected")
}

func (a *actor) remove(s *Session) {
	if _, ok := a.sessions[s]; !ok {
		return
	}
	delete(a.sessions, s)
	sessionsActive.Dec()
}

func (a *actor) pruneDisconnected() int {
	n := 0
	for s := range a.sessions {
		if s.State() != Connected {
			a.remove(s)
			n++
		}
	}
	return n
}

// storeContext bounds one storage operation. It survives cancellation of
// the caller's request so a started write is not abandoned half way.
func (a *actor) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), a.opts.StoreTimeout)
}

var tracer = otel.Tracer("room/actor")

// broadcast stamps msg, appends it to the history ledger and fans it out to
// every Connected session. Persistence and delivery are independent: a
// failure in one never skips the other.
func (a *actor) broadcast(ctx context.Context, msg domain.Message) Result {
	ctx, span := tracer.Start(ctx, "Broadcast", trace.WithAttributes(attribute.String("room.id", a.roomID)))
	defer span.End()

	var res Result
	if msg.Timestamp == "" {
		msg.Timestamp = domain.FormatTimestamp(a.opts.Now())
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		a.log.Error().Err(err).Msg("encode message")
		return res
	}
	broadcastsTotal.Inc()

	n, err := a.appendHistory(ctx, frame)
	if err != nil {
		persistFailures.Inc()
		span.RecordError(err)
		a.log.Error().Err(err).Msg("history persist failed")
	} else {
		res.Persisted = true
		res.HistoryLen = n
	}

	a.fanOut(frame, &res)

	span.SetAttributes(
		attribute.Int("room.delivered", res.Delivered),
		attribute.Int("room.failed", res.Failed),
		attribute.Bool("room.persisted", res.Persisted),
	)
	return res
}

func (a *actor) appendHistory(ctx context.Context, entry []byte) (int, error) {
	key := MessagesKey(a.roomID)

	getCtx, cancel := a.storeContext(ctx)
	raw, found, err := a.store.Get(getCtx, key)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", key, err)
	}

	var history []json.RawMessage
	if found {
		if history, err = decodeHistory(raw); err != nil {
			// never overwrite a ledger we cannot read
			return 0, fmt.Errorf("decode %s: %w", key, err)
		}
	}

	history, truncated := appendWithRetention(history, entry)
	if truncated {
		truncationsTotal.Inc()
		a.log.Info().Int("kept", len(history)).Msg("history truncated")
	}

	b, err := json.Marshal(history)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}

	putCtx, cancel := a.storeContext(ctx)
	defer cancel()
	if err := a.store.Put(putCtx, key, b); err != nil {
		return 0, fmt.Errorf("store %s: %w", key, err)
	}
	return len(history), nil
}

func (a *actor) fanOut(frame []byte, res *Result) {
	for s := range a.sessions {
		if s.State() != Connected {
			a.remove(s)
			res.Stale++
			deliveriesTotal.WithLabelValues("stale").Inc()
			continue
		}
		if err := s.Send(frame); err != nil {
			a.remove(s)
			res.Failed++
			deliveriesTotal.WithLabelValues("failed").Inc()
			a.log.Warn().Err(err).Str("session_id", s.ID()).Msg("session send failed")
			s.Close(closeCodeFor(err), "")
			continue
		}
		res.Delivered++
		deliveriesTotal.WithLabelValues("delivered").Inc()
	}
}

func (a *actor) storeBlob(ctx context.Context, value []byte) error {
	ctx, cancel := a.storeContext(ctx)
	defer cancel()
	return a.store.Put(ctx, DataKey(a.roomID), value)
}

type blobResult struct {
	value []byte
	found bool
	err   error
}

func (a *actor) fetchBlob(ctx context.Context) blobResult {
	ctx, cancel := a.storeContext(ctx)
	defer cancel()
	v, found, err := a.store.Get(ctx, DataKey(a.roomID))
	return blobResult{value: v, found: found, err: err}
}
