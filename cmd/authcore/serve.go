package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/settings"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/notification"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func runServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := configFlag(fs)
	addr := fs.String("addr", "", "listen address; overrides HTTP_ADDR")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		s.HTTPAddr = *addr
	}

	app := fx.New(
		fx.Supply(s),
		fx.Provide(
			newLogger,
			provideRedis,
			providePool,
			providePostgresStore,
			newSender,
			provideEngine,
			newServeMux,
		),
		fx.Invoke(startStartupJobs, startHTTPServer),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)
	app.Run()
	return app.Err()
}

func provideRedis(lc fx.Lifecycle, s settings.Settings) (redis.UniversalClient, error) {
	client, err := connectRedis(context.Background(), s)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func providePool(lc fx.Lifecycle, s settings.Settings) (*pgxpool.Pool, error) {
	pool, err := connectPostgres(context.Background(), s)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func providePostgresStore(pool *pgxpool.Pool) *postgres.Store {
	return postgres.New(pool)
}

func provideEngine(lc fx.Lifecycle, s settings.Settings, logger *zap.Logger, client redis.UniversalClient, st *postgres.Store, sender notification.Sender) (*authcore.Engine, error) {
	engine, err := newEngine(s, logger, client, st, sender)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			engine.Close()
			return nil
		},
	})
	return engine, nil
}

func newServeMux(engine *authcore.Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/app", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", prometheus.New(engine).Handler())
	return mux
}

// startStartupJobs enqueues the revocation preload. A failure is logged and
// the service keeps serving with a cold cache.
func startStartupJobs(lc fx.Lifecycle, engine *authcore.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := engine.RunStartupJobs(ctx); err != nil {
				logger.Error("startup jobs not scheduled", zap.Error(err))
			}
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, mux *http.ServeMux, s settings.Settings, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              s.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
