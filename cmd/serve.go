package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/portalsync/internal/server"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the WebSocket bridge until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if r.config.Log.File != "" {
		fileLogger, err := shared.NewFileLogger(r.config.Log.File)
		if err != nil {
			return err
		}
		r.SetLogger(fileLogger)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	if r.Sessions().Current() == nil {
		r.logger.Warn("no session imported; requests will fail until one is", "path", r.Sessions().Path())
	}

	engine := r.Engine()
	go engine.WatchSession(ctx)
	go func() {
		if err := r.Sessions().Watch(ctx); err != nil {
			r.logger.Warn("session watcher stopped", "err", err)
		}
	}()

	bridge := server.NewBridge(ctx, engine, r.logger)
	router := server.NewRouter(bridge, engine, server.Recoverer(r.logger), server.RequestLogger(r.logger))
	srv := server.New(addr, router, r.logger)
	if err := srv.Start(); err != nil {
		return err
	}
	r.writePlain("Serving on ws://%s/ws (health: http://%s/health)\n", srv.Addr(), srv.Addr())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	engine.Wait()
	return nil
}
