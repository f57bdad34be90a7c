package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ldi/taskdesk/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			asst, _, err := a.pipeline(ctx, database)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}

			srv := server.NewServer(database, asst, a.logger)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, addr)
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down http server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Warn("http shutdown failed", zap.Error(err))
					return err
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http_addr from config)")
	return cmd
}
