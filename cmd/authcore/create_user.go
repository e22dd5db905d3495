package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func runCreateUser(args []string) error {
	fs := pflag.NewFlagSet("create-user", pflag.ContinueOnError)
	configPath := configFlag(fs)
	email := fs.String("email", "", "login email (required)")
	password := fs.String("password", "", "initial password (required)")
	fullName := fs.String("full-name", "", "display name")
	roles := fs.StringSlice("roles", nil, "comma separated roles")
	mfaEnabled := fs.Bool("mfa", true, "require an emailed code at login")
	active := fs.Bool("active", true, "allow the principal to log in")
	verified := fs.Bool("email-verified", false, "mark the email as verified")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("--email and --password are required")
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

	client, err := connectRedis(ctx, s)
	if err != nil {
		return err
	}
	defer client.Close()

	sender, err := newSender(s, logger)
	if err != nil {
		return err
	}
	engine, err := newEngine(s, logger, client, postgres.New(pool), sender)
	if err != nil {
		return err
	}
	defer engine.Close()

	principal, err := engine.CreateUser(ctx, authcore.CreateUserInput{
		Email:         *email,
		Password:      *password,
		FullName:      *fullName,
		Roles:         *roles,
		Active:        *active,
		MFAEnabled:    *mfaEnabled,
		EmailVerified: *verified,
	})
	if err != nil {
		return err
	}
	logger.Info("principal created", zap.String("user_id", principal.ID), zap.String("email", principal.Email))
	fmt.Println(principal.ID)
	return nil
}
