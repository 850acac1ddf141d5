// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("mpls.lsp")
	meter  = otel.Meter("mpls.lsp")
)

var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	serverStarts   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"mpls_lsp_request_duration_seconds",
			metric.WithDescription("Duration of requests sent to language servers"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"mpls_lsp_request_total",
			metric.WithDescription("Total number of requests sent to language servers"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverStarts, err = meter.Int64Counter(
			"mpls_lsp_server_starts_total",
			metric.WithDescription("Total number of language server starts"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRequestSpan creates a span for one request to a server.
func startRequestSpan(ctx context.Context, server, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Server."+method,
		trace.WithAttributes(
			attribute.String("lsp.server", server),
			attribute.String("lsp.method", method),
		),
	)
}

// recordRequestMetrics records metrics for one request.
func recordRequestMetrics(ctx context.Context, server, method string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("method", method),
		attribute.Bool("success", success),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

// recordServerStart records a server start attempt.
func recordServerStart(ctx context.Context, server string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverStarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
		attribute.Bool("success", success),
	))
}
