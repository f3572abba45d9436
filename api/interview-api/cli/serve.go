// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	interview_routers "github.com/rapidaai/interview/api/interview-api/router"
)

const shutdownTimeout = 30 * time.Second

func NewServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the interview HTTP API",
		Long:  "Start the HTTP API that creates interviews, hosts the candidate's talk connection and receives recordings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			return a.serve(ctx)
		},
	}
}

// serve blocks until ctx ends, then hangs up the live interviews so their
// results are stored before the listener closes.
func (a *app) serve(ctx context.Context) error {
	engine := interview_routers.NewEngine(a.cfg)
	interview_routers.HealthCheckRoutes(a.cfg, engine, a.logger, a.db, a.redis)
	interview_routers.InterviewApiRoute(a.cfg, engine, a.logger, a.deps)

	server := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("%s %s listening on %s", a.cfg.Name, a.cfg.Version, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Infof("Shutting down %s", a.cfg.Name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.deps.Registry.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorw("Live interviews did not finish in time", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
