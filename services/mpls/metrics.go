// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mpls

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/mpls/pkg/telemetry"
)

const tracerName = "mpls"

var (
	// operationDuration measures service operations.
	// Labels: operation, status (ok, error)
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpls",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Duration of mpls service operations",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation", "status"})

	// diagnosticsReported counts reported diagnostics.
	// Labels: code (empty for the uncoded field warning)
	diagnosticsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpls",
		Subsystem: "service",
		Name:      "diagnostics_reported_total",
		Help:      "Diagnostics reported by code",
	}, []string{"code"})

	// documentFailures counts documents whose check failed.
	documentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpls",
		Subsystem: "service",
		Name:      "document_failures_total",
		Help:      "Documents whose diagnostic check failed",
	})

	// workspaceDocuments tracks the number of loaded documents.
	workspaceDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpls",
		Subsystem: "service",
		Name:      "workspace_documents",
		Help:      "Java documents held by the workspace",
	})
)

// startOperation opens a span for operation. The returned func records
// the duration and outcome and ends the span.
func startOperation(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "mpls."+operation)
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		operationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
		telemetry.End(span, err)
	}
}
