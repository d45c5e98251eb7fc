// Package room routes per-room work to one sequential actor per room.
//
// Each room actor owns the room's live sessions, its history ledger and its
// opaque blob. Commands for one room run in arrival order; rooms never share
// state so distinct rooms proceed in parallel.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-room-relay/internal/domain"
)

// Options tunes a Hub. Zero values fall back to the defaults below.
type Options struct {
	QueueSize    int              // per-room command queue capacity
	IdleTimeout  time.Duration    // idle time with no sessions before an actor is evicted
	StoreTimeout time.Duration    // bound on each storage operation
	Session      SessionOptions   // socket I/O limits for new sessions
	Now          func() time.Time // clock used to stamp broadcasts
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Session = o.Session.withDefaults()
	return o
}

// Hub maps room IDs to actors, creating them lazily on first use.
type Hub struct {
	store Store
	opts  Options

	mu     sync.Mutex
	actors map[string]*actor
	closed bool

	quit chan struct{}
	wg   sync.WaitGroup
	log  zerolog.Logger
}

// NewHub returns a Hub persisting into store.
func NewHub(store Store, opts Options) *Hub {
	return &Hub{
		store:  store,
		opts:   opts.withDefaults(),
		actors: make(map[string]*actor),
		quit:   make(chan struct{}),
		log:    log.With().Str("module", "room").Logger(),
	}
}

func (h *Hub) actor(roomID string) (*actor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if a, ok := h.actors[roomID]; ok {
		return a, nil
	}
	a := newActor(h, roomID)
	h.actors[roomID] = a
	roomsActive.Inc()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		a.loop()
	}()
	return a, nil
}

// evict removes a from the routing table if it is still the current actor
// for its room. Once evicted no new command can reach a.
func (h *Hub) evict(a *actor) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.actors[a.roomID] != a || len(a.queue) > 0 {
		return false
	}
	delete(h.actors, a.roomID)
	roomsActive.Dec()
	return true
}

// run executes fn on the room's actor. If the actor was evicted between
// lookup and enqueue, fn has not run and is retried on a fresh actor.
func run[T any](ctx context.Context, h *Hub, roomID string, fn func(a *actor) T) (T, error) {
	for {
		a, err := h.actor(roomID)
		if err != nil {
			var zero T
			return zero, err
		}
		v, err := call(ctx, a, func() T { return fn(a) })
		if errors.Is(err, errActorStopped) {
			if h.isClosed() {
				return v, ErrHubClosed
			}
			continue
		}
		return v, err
	}
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Connect registers conn as a new Connected session of roomID and starts
// its pumps. The session stays registered until it disconnects. On error
// the session is closed, whether or not its attach already ran.
func (h *Hub) Connect(ctx context.Context, roomID string, conn Conn) (*Session, error) {
	s := newSession(roomID, conn, h.opts.Session)
	_, err := run(ctx, h, roomID, func(a *actor) struct{} {
		a.attach(s)
		return struct{}{}
	})
	if err != nil {
		s.Close(websocket.CloseGoingAway, "")
		return nil, err
	}
	s.start()
	return s, nil
}

// Broadcast stamps msg, appends it to the room's history ledger and sends
// it to every Connected session of the room.
func (h *Hub) Broadcast(ctx context.Context, roomID string, msg domain.Message) (Result, error) {
	return run(ctx, h, roomID, func(a *actor) Result {
		return a.broadcast(ctx, msg)
	})
}

// StoreBlob replaces the room's opaque blob.
func (h *Hub) StoreBlob(ctx context.Context, roomID string, value []byte) error {
	err, callErr := run(ctx, h, roomID, func(a *actor) error {
		return a.storeBlob(ctx, value)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// FetchBlob returns the room's blob; found is false if none was ever stored.
func (h *Hub) FetchBlob(ctx context.Context, roomID string) ([]byte, bool, error) {
	r, err := run(ctx, h, roomID, func(a *actor) blobResult {
		return a.fetchBlob(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	return r.value, r.found, r.err
}

// Sessions reports how many sessions of roomID are Connected.
func (h *Hub) Sessions(ctx context.Context, roomID string) (int, error) {
	return run(ctx, h, roomID, func(a *actor) int {
		a.pruneDisconnected()
		return len(a.sessions)
	})
}

// Rooms reports how many room actors are running.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.actors)
}

// Ping checks the backing store.
func (h *Hub) Ping(ctx context.Context) error {
	if h.isClosed() {
		return ErrHubClosed
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()
	return h.store.Ping(ctx)
}

// Close stops every actor and closes their sessions. It waits for the
// actors to exit or ctx to expire.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	n := len(h.actors)
	for id := range h.actors {
		delete(h.actors, id)
		roomsActive.Dec()
	}
	close(h.quit)
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Int("rooms", n).Msg("room hub closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
