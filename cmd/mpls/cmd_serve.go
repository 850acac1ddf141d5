// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/mpls/pkg/telemetry"
	"github.com/AleutianAI/mpls/services/mpls"
	"github.com/AleutianAI/mpls/services/mpls/codelens"
	"github.com/AleutianAI/mpls/services/mpls/config"
	"github.com/AleutianAI/mpls/services/mpls/lsp"
	"github.com/AleutianAI/mpls/services/mpls/workspace"
)

func newServeCmd(a *app) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Loads the workspace and serves diagnostics, quick fixes and code lenses
under /v1/mpls. Prometheus metrics are served on /metrics when the
prometheus exporter is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "enable gin debug mode and request logging")
	return cmd
}

func (a *app) serve(ctx context.Context, debug bool) error {
	cfg := a.cfg

	shutdownTelemetry, err := telemetry.Init(ctx, telemetryConfig(cfg.Telemetry))
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}

	mgr := lsp.NewManagerWithRegistry(ws.Root(), cfg.ManagerConfig(), cfg.Registry())
	mgr.StartIdleMonitor()
	svc := a.newService(ws, codelens.ManagerRegistry{Manager: mgr}).WithManager(mgr)

	if cfg.Workspace.Watch {
		watcher, err := workspace.NewWatcher(ws, workspace.DefaultDebounce, svc.HandleChanges)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("File watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	router, err := newRouter(svc, debug)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting mpls server",
			slog.String("address", cfg.Server.Addr),
			slog.String("root", ws.Root()),
			slog.Int("documents", ws.Len()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = svc.Close(context.Background())
			return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down mpls server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	return errors.Join(err, svc.Close(shutdownCtx))
}

// newRouter builds the gin engine with tracing, request metrics and the
// mpls routes.
func newRouter(svc *mpls.Service, debug bool) (*gin.Engine, error) {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("mpls"))
	if debug {
		router.Use(gin.Logger())
	}

	metrics, err := telemetry.NewHTTPMetrics(otel.Meter("mpls"))
	if err != nil {
		return nil, err
	}
	router.Use(metrics.Middleware())
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/v1")
	mpls.RegisterRoutes(v1, mpls.NewHandlers(svc))
	return router, nil
}

func telemetryConfig(c config.TelemetryConfig) telemetry.Config {
	return telemetry.Config{
		ServiceName:    "mpls",
		ServiceVersion: mpls.ServiceVersion,
		TraceExporter:  c.TraceExporter,
		MetricExporter: c.MetricExporter,
		OTLPEndpoint:   c.OTLPEndpoint,
		OTLPInsecure:   c.OTLPInsecure,
	}
}
