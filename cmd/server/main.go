// Command server runs the room relay: WebSocket sessions, webhook ingest and
// per-room persistence behind a Gin HTTP server.
//
// @title          Room Relay API
// @version        1.0
// @description    Per-room real-time relay: sockets, webhook ingest, bounded history and a JSON blob per room.
// @BasePath       /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-room-relay/docs"
	"github.com/tbourn/go-room-relay/internal/config"
	httpapi "github.com/tbourn/go-room-relay/internal/http"
	"github.com/tbourn/go-room-relay/internal/observability"
	"github.com/tbourn/go-room-relay/internal/repo"
	"github.com/tbourn/go-room-relay/internal/room"
	"github.com/tbourn/go-room-relay/internal/services"
	"github.com/tbourn/go-room-relay/internal/sysutil"
)

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	// .env is optional; real env vars win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

// run serves until ctx is canceled, then drains HTTP, closes every room
// and releases the stores.
func run(ctx context.Context, cfg config.Config) error {
	version := sysutil.Version()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, db)
	if err != nil {
		return err
	}

	hub := room.NewHub(store, roomOptions(cfg))

	r := gin.New()
	httpapi.RegisterRoutes(r, db, hub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, services.NewIdempotencyService(db, cfg.IdempotencyTTL), purgeInterval)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreDriver).
			Str("version", version).
			Msg("starting room relay")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked sockets are not tracked by srv.Shutdown; the hub closes them.
	errs := []error{
		srv.Shutdown(shutdownCtx),
		hub.Close(shutdownCtx),
		closeStore(),
		closeDB(db),
		otelShutdown(shutdownCtx),
	}
	return errors.Join(errs...)
}

// openStore picks the durable KV backend for room history and blobs.
func openStore(ctx context.Context, cfg config.Config, db *gorm.DB) (room.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreRedis:
		rs, err := repo.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("connected to Redis")
		return rs, rs.Close, nil
	default:
		return repo.NewSQLStore(db), func() error { return nil }, nil
	}
}

func roomOptions(cfg config.Config) room.Options {
	return room.Options{
		QueueSize:    cfg.Room.QueueSize,
		IdleTimeout:  cfg.Room.IdleTimeout,
		StoreTimeout: cfg.Room.StoreTimeout,
		Session: room.SessionOptions{
			SendBuffer:     cfg.WS.SendBuffer,
			WriteTimeout:   cfg.WS.WriteTimeout,
			PongWait:       cfg.WS.PongWait,
			MaxMessageSize: cfg.WS.MaxMessageBytes,
		},
	}
}

// purgeIdempotency deletes expired webhook keys every interval until ctx ends.
func purgeIdempotency(ctx context.Context, svc *services.IdempotencyService, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.Purge(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency keys purged")
			}
		}
	}
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
