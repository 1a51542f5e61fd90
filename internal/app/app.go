// Package app assembles a running wheel8 instance from its config.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MJE43/wheel8/internal/anchor"
	"github.com/MJE43/wheel8/internal/api"
	"github.com/MJE43/wheel8/internal/config"
	"github.com/MJE43/wheel8/internal/game"
	"github.com/MJE43/wheel8/internal/notify"
	"github.com/MJE43/wheel8/internal/store"
	"github.com/MJE43/wheel8/internal/wheel"
)

const shutdownTimeout = 10 * time.Second

// App owns the store, the game service, and every outbound connection.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	db      store.DB
	svc     *game.Service
	closers []func() error
}

// New opens and migrates the store and connects the configured notifiers.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	src, err := NewAnchor(ctx, cfg, db, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	n, err := a.notifiers(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = game.NewService(db, src, n, log)
	return a, nil
}

// OpenStore connects to the configured store without migrating it.
func OpenStore(ctx context.Context, cfg config.Config) (store.DB, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := store.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return db, nil
	case config.StorePostgres:
		db, err := store.NewPostgresDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// NewAnchor returns the configured entropy anchor source. The sequence source
// resumes above the largest anchor already in db so values never repeat across
// restarts.
func NewAnchor(ctx context.Context, cfg config.Config, db store.DB, log *zap.Logger) (anchor.Source, error) {
	switch cfg.Anchor {
	case config.AnchorClock:
		return anchor.NewClock(nil), nil
	case config.AnchorSequence:
		start := cfg.SequenceStart
		largest, ok, err := db.MaxAnchor(ctx)
		if err != nil {
			return nil, fmt.Errorf("resume anchor sequence: %w", err)
		}
		if ok && largest >= start {
			if largest == math.MaxUint64 {
				return nil, wheel.Errorf(wheel.KindEntropySourceUnavailable, "anchor sequence exhausted: stored anchor %d", largest)
			}
			start = largest + 1
			if log != nil {
				log.Info("anchor sequence resumed",
					zap.Uint64("stored_max", largest),
					zap.Uint64("start", start),
				)
			}
		}
		return anchor.NewSequence(start), nil
	default:
		return nil, fmt.Errorf("unknown anchor source %q", cfg.Anchor)
	}
}

// notifiers always logs events and adds Redis and AMQP when configured.
func (a *App) notifiers(ctx context.Context) (notify.Notifier, error) {
	multi := notify.Multi{notify.NewLogNotifier(a.log.Named("events"))}

	if a.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", a.cfg.RedisAddr, err)
		}
		multi = append(multi, notify.NewRedisNotifier(client, a.cfg.RedisPrefix))
		a.log.Info("redis notifications enabled", zap.String("addr", a.cfg.RedisAddr))
	}

	if a.cfg.AMQPURL != "" {
		n, err := notify.DialAMQP(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		multi = append(multi, n)
		a.log.Info("amqp notifications enabled", zap.String("exchange", a.cfg.AMQPExchange))
	}

	return multi, nil
}

func (a *App) Service() *game.Service { return a.svc }

func (a *App) Store() store.DB { return a.db }

// SeedWheels initializes every definition that has no config yet and returns
// how many were created. Existing wheels are left as they are.
func (a *App) SeedWheels(ctx context.Context, defs []config.WheelDef) (int, error) {
	created := 0
	for _, d := range defs {
		cfg, err := d.Config()
		if err != nil {
			return created, err
		}
		_, err = a.svc.Initialize(ctx, d.ID, cfg.Slice())
		if errors.Is(err, wheel.ErrAlreadyInitialized) {
			a.log.Debug("wheel already initialized", zap.String("wheel_id", d.ID))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed wheel %s: %w", d.ID, err)
		}
		created++
	}
	return created, nil
}

// Handler builds the HTTP API. It requires a JWT secret.
func (a *App) Handler() (http.Handler, error) {
	auth, err := api.NewAuthenticator([]byte(a.cfg.JWTSecret), a.cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	srv := api.NewServer(a.svc, a.db, auth, a.log, api.Options{
		CORSOrigins:    a.cfg.CORSOrigins,
		RequestTimeout: a.cfg.RequestTimeout,
	})
	return srv.Routes(), nil
}

// Serve runs the HTTP API until ctx is cancelled, then drains in-flight
// requests.
func (a *App) Serve(ctx context.Context) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server started", zap.String("addr", a.cfg.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
