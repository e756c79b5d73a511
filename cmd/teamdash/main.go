package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/config"
	"github.com/DoyleJ11/hacksail-client/internal/credstore"
	"github.com/DoyleJ11/hacksail-client/internal/dashboard"
	"github.com/DoyleJ11/hacksail-client/internal/httpapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "teamdash:", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run() (err error) {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Parse("teamdash", os.Args[1:])
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := credstore.OpenSQLite(ctx, cfg.StateDB)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	ch := channel.NewClient(cfg.ChannelURL, log)
	d := dashboard.New(ctx, dashboard.Config{
		Bus:        ch,
		API:        api.New(cfg.APIURL, api.WithLogger(log)),
		Store:      store,
		Logger:     log,
		Revalidate: cfg.Revalidate,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.SetupRoutes(d, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ch.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("channel: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Send(sctx, dashboard.Shutdown{})
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	<-d.Done()
	log.Info("stopped")
	return err
}
