package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/api"
	"github.com/DoyleJ11/hacksail-client/internal/channel"
	"github.com/DoyleJ11/hacksail-client/internal/clock"
	"github.com/DoyleJ11/hacksail-client/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse("hackadmin", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "hackadmin:", err)
		os.Exit(2)
	}

	// The CLI's own output goes to stdout; logs stay quiet unless asked for.
	log := zap.NewNop()
	if cfg.Debug {
		if log, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, "hackadmin:", err)
			os.Exit(1)
		}
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := channel.NewClient(cfg.ChannelURL, log)
	go func() { _ = ch.Run(ctx) }()

	a := &app{
		cfg:      cfg,
		api:      api.New(cfg.APIURL, api.WithLogger(log)),
		bus:      ch,
		up:       api.NewCloudinary(cfg.CloudinaryCloud, cfg.CloudinaryPreset, nil),
		clk:      clock.Real{},
		log:      log,
		out:      os.Stdout,
		pushWait: 10 * time.Second,
	}
	if err := a.run(ctx, cfg.Args); err != nil {
		fmt.Fprintln(os.Stderr, "hackadmin:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}
