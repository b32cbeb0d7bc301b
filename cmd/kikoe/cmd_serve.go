package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/corpus"
	"github.com/hyperjump/kikoe/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local dashboard API",
		Long: `Serves the dashboard API for one research session. The race override table is
reloaded when the config file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	logger := a.logger
	c := a.client()
	ws := a.workspace()
	defer ws.Close()
	browser := corpus.NewBrowser(c, logger.Named("corpus"))
	defer browser.Close()

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher, err := config.WatchOverrides(watchCtx, a.resolvedPath, ws.SetOverrides,
		config.WithLogger(logger.Named("config")))
	if err != nil {
		logger.Warn("config watch disabled", zap.String("path", a.resolvedPath), zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	srv := server.NewServer(ws, browser, &a.cfg.Server, logger.Named("server"))
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
