// README: Entry point; loads config, wires services, starts HTTP server, notifier and schedulers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"vrent/internal/app"
	"vrent/internal/config"
	apihttp "vrent/internal/http"
	"vrent/internal/logger"
	"vrent/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("vrent-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deps, err := a.ServerDeps(ctx)
	if err != nil {
		return err
	}

	// The notifier outlives the HTTP server so events from draining
	// requests are still delivered.
	notifyCtx, cancelNotify := context.WithCancel(context.Background())
	notifyDone := make(chan struct{})
	go func() {
		a.Notifier.Run(notifyCtx)
		close(notifyDone)
	}()
	defer func() {
		cancelNotify()
		<-notifyDone
	}()

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(a.Jobs, cfg.Scheduler, cfg.Location())
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	return apihttp.NewServer(cfg.HTTP.Addr, deps).Run(ctx)
}
