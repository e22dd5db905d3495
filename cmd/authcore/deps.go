package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/settings"
	"github.com/MrEthical07/authcore/notification"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

func loadSettings(path string) (settings.Settings, error) {
	s, err := settings.Load(path)
	if err != nil {
		return settings.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return settings.Settings{}, err
	}
	return s, nil
}

func configFlag(fs *pflag.FlagSet) *string {
	return fs.StringP("config", "c", "", "path to a TOML settings file; environment variables override it")
}

func newLogger(s settings.Settings) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if s.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func connectPostgres(ctx context.Context, s settings.Settings) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, s.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, s settings.Settings) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{s.Redis.Addr},
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// newSender delivers over SMTP when a host is configured and falls back to
// logging otherwise.
func newSender(s settings.Settings, logger *zap.Logger) (notification.Sender, error) {
	logSender := notification.NewLogSender(logger.Named("notification"))
	if s.SMTP.Host == "" {
		return logSender, nil
	}
	smtpSender, err := notification.NewSMTPSender(s.SMTPConfig())
	if err != nil {
		return nil, err
	}
	return smtpSender, nil
}

func newEngine(s settings.Settings, logger *zap.Logger, client redis.UniversalClient, st *postgres.Store, sender notification.Sender) (*authcore.Engine, error) {
	cfg, err := s.EngineConfig()
	if err != nil {
		return nil, err
	}
	return authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(st).
		WithSender(sender).
		WithLogger(logger).
		Build()
}
