package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stationsync/internal/server"
	"github.com/desertthunder/stationsync/internal/shared"
)

// Serve runs the HTTP daemon until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	changes, unsubscribe := a.broadcaster.Subscribe(8)
	defer unsubscribe()
	go func() {
		for modified := range changes {
			r.logger.Info("collection changed", "modified", shared.FormatRFC2822(modified))
		}
	}()

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	router.Handler(server.NewStationHandler(a.collection, a.downloads, a.history, r.logger))

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	return server.Serve(ctx, addr, router, r.logger)
}
