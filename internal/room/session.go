package room

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the liveness of a Session as seen by its own socket lifecycle.
type State int32

const (
	Connected State = iota
	Disconnected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Conn is the subset of *websocket.Conn a Session drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// SessionOptions bounds a session's socket I/O.
type SessionOptions struct {
	SendBuffer     int           // queued outbound frames before Send reports backpressure
	WriteTimeout   time.Duration // deadline for each frame written to the peer
	PongWait       time.Duration // read deadline, extended on every pong
	PingPeriod     time.Duration // must be shorter than PongWait
	MaxMessageSize int64         // read limit for client frames
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// Session is one live socket bound to a room. Only its write pump writes
// data frames to the socket.
type Session struct {
	id     string
	roomID string
	conn   Conn
	opts   SessionOptions

	send  chan []byte
	done  chan struct{}
	state atomic.Int32
	once  sync.Once

	// mu orders bind against Close so a session closed while its attach is
	// still queued is never registered.
	mu      sync.Mutex
	onClose func(*Session)

	log zerolog.Logger
}

func newSession(roomID string, conn Conn, opts SessionOptions) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Session{
		id:     id,
		roomID: roomID,
		conn:   conn,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		log: log.With().
			Str("module", "room").
			Str("room_id", roomID).
			Str("session_id", id).
			Logger(),
	}
}

// ID is a random identifier for logs.
func (s *Session) ID() string { return s.id }

// RoomID returns the room the session is bound to.
func (s *Session) RoomID() string { return s.roomID }

// State reports Connected until the socket fails, the peer leaves or Close is called.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed when the session becomes Disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send queues frame for the write pump without blocking.
func (s *Session) Send(frame []byte) error {
	if s.State() != Connected {
		return ErrSessionClosed
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrBackpressure
	}
}

// Close marks the session Disconnected and hands the socket teardown to a
// separate goroutine. It never waits on socket I/O, so an actor may call it
// while the write pump is stuck on a slow peer. Safe to call more than once
// and from any goroutine.
func (s *Session) Close(code int, reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(Disconnected))
		onClose := s.onClose
		s.mu.Unlock()

		close(s.done)
		s.log.Debug().Int("code", code).Msg("session closed")
		go s.release(code, reason)
		if onClose != nil {
			onClose(s)
		}
	})
}

// release sends the close frame best effort and frees the socket. The close
// frame waits for the socket's write lock, so a peer that stopped reading
// holds it up to WriteTimeout.
func (s *Session) release(code int, reason string) {
	deadline := time.Now().Add(s.opts.WriteTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.conn.Close()
}

// bind installs the callback Close runs. It reports false once the session
// is already Disconnected.
func (s *Session) bind(onClose func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Connected {
		return false
	}
	s.onClose = onClose
	return true
}

func (s *Session) start() {
	go s.writePump()
	go s.readPump()
}

// readPump drains client frames so control frames and disconnects are seen.
// Client data frames are not relayed.
func (s *Session) readPump() {
	defer s.Close(websocket.CloseNormalClosure, "")

	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug().Err(err).Msg("session read ended")
			}
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				// a session already dropped by its room was counted there
				if s.State() == Connected {
					s.log.Warn().Err(err).Msg("session send failed")
					deliveriesTotal.WithLabelValues("failed").Inc()
				}
				s.Close(websocket.CloseGoingAway, "")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close(websocket.CloseGoingAway, "")
				return
			}
		case <-s.done:
			return
		}
	}
}

// closeCodeFor picks the close code used when a broadcast drops a session.
func closeCodeFor(err error) int {
	if errors.Is(err, ErrBackpressure) {
		return websocket.CloseTryAgainLater
	}
	return websocket.CloseGoingAway
}
