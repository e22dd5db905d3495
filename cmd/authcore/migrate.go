package main

import (
	"context"

	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/spf13/pflag"
)

func runMigrate(args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(s)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := connectPostgres(ctx, s)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.New(pool).Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}
