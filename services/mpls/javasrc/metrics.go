// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package javasrc

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
	tracer = otel.Tracer("mpls.javasrc")
	meter  = otel.Meter("mpls.javasrc")
)

var (
	parseLatency  metric.Float64Histogram
	parseTotal    metric.Int64Counter
	typesDeclared metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"javasrc_parse_duration_seconds",
			metric.WithDescription("Duration of Java parse operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"javasrc_parse_total",
			metric.WithDescription("Total number of Java parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		typesDeclared, err = meter.Int64Histogram(
			"javasrc_types_declared",
			metric.WithDescription("Number of type declarations per parsed file"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordParseMetrics(ctx context.Context, duration time.Duration, typeCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)
	if success {
		typesDeclared.Record(ctx, int64(typeCount))
	}
}

func startParseSpan(ctx context.Context, uri string, size int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Parser.Parse",
		trace.WithAttributes(
			attribute.String("javasrc.uri", uri),
			attribute.Int("javasrc.content_size", size),
		),
	)
}
