package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/tbourn/go-room-relay/docs"
	"github.com/tbourn/go-room-relay/internal/config"
	"github.com/tbourn/go-room-relay/internal/http/middleware"
	"github.com/tbourn/go-room-relay/internal/repo"
	"github.com/tbourn/go-room-relay/internal/room"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/",
		MaxBodyBytes:   1 << 20,
		RateRPS:        1000,
		RateBurst:      1000,
		CORS:           config.CORSConfig{AllowedOrigins: nil},
		Security:       config.SecurityConfig{EnableHSTS: false},
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

// newRouter wires the full stack over an in-memory SQLite store.
func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB, *room.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	hub := room.NewHub(repo.NewSQLStore(db), room.Options{})
	t.Cleanup(func() { _ = hub.Close(context.Background()) })

	r := gin.New()
	RegisterRoutes(r, db, hub, cfg)
	return r, db, hub
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = serve(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] != "Not found" {
		t.Fatalf("unexpected 404 body: %s", w.Body.String())
	}

	w = serve(r, http.MethodPost, "/health", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_RootGreeting(t *testing.T) {
	r, _, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / = %d", w.Code)
	}
	if got := w.Body.String(); got != "Hello Hono!" {
		t.Fatalf("body = %q", got)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type = %q", ct)
	}
	if w = serve(r, http.MethodPost, "/", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST / = %d, want 405", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_Ready(t *testing.T) {
	r, db, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ready"`) {
		t.Fatalf("GET /ready = %d %s", w.Code, w.Body.String())
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w = serve(r, http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after store close, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "store unavailable") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRegisterRoutes_Webhook_PersistsAndDeduplicates(t *testing.T) {
	r, db, _ := newRouter(t, testConfig())
	hdr := map[string]string{
		"Content-Type":                  "application/json",
		middleware.HeaderIdempotencyKey: "delivery-1",
	}

	w := serve(r, http.MethodPost, "/webhook/room/r1", `{"content":"hi","sender":"slack"}`, hdr)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"success":true}` {
		t.Fatalf("first delivery: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first delivery must not be a replay")
	}

	w = serve(r, http.MethodPost, "/webhook/room/r1", `{"content":"hi","sender":"slack"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("retry: %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}

	// same key, other room: a new delivery
	w = serve(r, http.MethodPost, "/webhook/room/r2", `{"content":"hi"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("other room: %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}

	raw, err := repo.GetValue(context.Background(), db, room.MessagesKey("r1"))
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	var history []map[string]any
	if err := json.Unmarshal(raw, &history); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0]["content"] != "hi" || history[0]["sender"] != "slack" {
		t.Fatalf("unexpected history: %s", raw)
	}
}

func TestRegisterRoutes_Data_UnderBasePath(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api"
	r, _, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/api/room/r1/data", "", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "No data found") {
		t.Fatalf("missing blob: %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/api/room/r1/data", `{"topic": "launch"}`, map[string]string{"Content-Type": "application/json"})
	if w.Code != http.StatusOK {
		t.Fatalf("store: %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/room/r1/data", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"topic":"launch"}` {
		t.Fatalf("fetch: %d %s", w.Code, w.Body.String())
	}

	// room routes are not mounted at the root when a base path is set
	if w := serve(r, http.MethodGet, "/room/r1/data", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 at root, got %d", w.Code)
	}
}

func TestRegisterRoutes_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	r, _, _ := newRouter(t, cfg)

	w := serve(r, http.MethodPost, "/room/r1/data", `{"padding":"0123456789abcdef"}`, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestRegisterRoutes_ConnectWithoutUpgrade_NotCompressed(t *testing.T) {
	r, _, hub := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/room/r1/connect", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Expected WebSocket") {
		t.Fatalf("expected 400 Expected WebSocket, got %d %s", w.Code, w.Body.String())
	}
	if enc := w.Header().Get("Content-Encoding"); enc != "" {
		t.Fatalf("connect path must not be compressed, got %q", enc)
	}
	if hub.Rooms() != 0 {
		t.Fatalf("rejected upgrade must not start a room")
	}
}

func TestRegisterRoutes_Socket_ReceivesWebhook(t *testing.T) {
	r, _, hub := newRouter(t, testConfig())
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/room/lobby/connect"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := hub.Sessions(context.Background(), "lobby")
		if err == nil && n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never registered (n=%d err=%v)", n, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(srv.URL+"/webhook/room/lobby", "application/json", bytes.NewBufferString(`{"content":"ping","platformId":"p-1"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if msg["content"] != "ping" || msg["sender"] != "webhook" || msg["platformId"] != "p-1" {
		t.Fatalf("unexpected frame: %s", frame)
	}
	if ts, _ := msg["timestamp"].(string); !strings.HasSuffix(ts, "Z") {
		t.Fatalf("timestamp not UTC: %q", ts)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	r, _, _ := newRouter(t, cfg)
	if w := serve(r, http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}

	cfg.SwaggerEnabled = true
	r, _, _ = newRouter(t, cfg)
	w := serve(r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/webhook/room/{id}") {
		t.Fatalf("doc.json: %d %.120s", w.Code, w.Body.String())
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

type errPinger struct{ err error }

func (p errPinger) Ping(context.Context) error { return p.err }

func Test_readiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{"up", nil, http.StatusOK},
		{"down", io.ErrUnexpectedEOF, http.StatusServiceUnavailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ready", readiness(errPinger{tc.err}))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tc.want {
				t.Fatalf("got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
