package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ----- Fake store -----

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	putErr error
	puts   int
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *memStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func (m *memStore) set(key string, v []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v
}

// ----- Fake socket -----

type fakeConn struct {
	frames chan []byte   // text frames written by the session
	closed chan struct{} // closed by Close
	once   sync.Once

	// wlock admits one writer at a time, as *websocket.Conn does. Close
	// frames queue behind an in-flight data write until their deadline.
	wlock chan struct{}

	block bool  // WriteMessage holds wlock until Close or the write deadline
	err   error // WriteMessage fails with err

	mu            sync.Mutex
	closeCode     int
	writeDeadline time.Time
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 1024),
		closed: make(chan struct{}),
		wlock:  make(chan struct{}, 1),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.wlock <- struct{}{}
	defer func() { <-c.wlock }()

	if c.block {
		c.mu.Lock()
		deadline := c.writeDeadline
		c.mu.Unlock()
		var expired <-chan time.Time
		if !deadline.IsZero() {
			timer := time.NewTimer(time.Until(deadline))
			defer timer.Stop()
			expired = timer.C
		}
		select {
		case <-c.closed:
			return errors.New("use of closed connection")
		case <-expired:
			return errors.New("i/o timeout")
		}
	}
	if c.err != nil {
		return c.err
	}
	if mt == websocket.TextMessage {
		c.frames <- append([]byte(nil), data...)
	}
	return nil
}

func (c *fakeConn) WriteControl(mt int, data []byte, deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case c.wlock <- struct{}{}:
		defer func() { <-c.wlock }()
	case <-timer.C:
		return errors.New("write lock timeout")
	}
	if mt == websocket.CloseMessage && len(data) >= 2 {
		c.mu.Lock()
		c.closeCode = int(data[0])<<8 | int(data[1])
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func recvFrame(c *fakeConn, d time.Duration) ([]byte, bool) {
	select {
	case f := <-c.frames:
		return f, true
	case <-time.After(d):
		return nil, false
	}
}
