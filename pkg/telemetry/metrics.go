// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds the HTTP server instruments.
//
// Thread Safety: Safe for concurrent use after creation.
type HTTPMetrics struct {
	// Requests counts requests by method, route and status.
	Requests metric.Int64Counter

	// Duration records request duration in seconds.
	Duration metric.Float64Histogram

	// Active tracks in-flight requests.
	Active metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the HTTP instruments with meter.
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	m := &HTTPMetrics{}
	var err error

	m.Requests, err = meter.Int64Counter(
		"mpls_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}

	m.Duration, err = meter.Float64Histogram(
		"mpls_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	m.Active, err = meter.Int64UpDownCounter(
		"mpls_http_active_requests",
		metric.WithDescription("In-flight HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active counter: %w", err)
	}
	return m, nil
}

// Middleware records every request. Routes are labelled by their
// registered pattern so path parameters do not explode cardinality.
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.Active.Add(ctx, 1)
		defer m.Active.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(c.Writer.Status())),
		)
		m.Requests.Add(ctx, 1, attrs)
		m.Duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
