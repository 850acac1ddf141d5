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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "mpls" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "mpls")
	}
	if cfg.TraceExporter != ExporterNone {
		t.Errorf("TraceExporter = %q, want %q", cfg.TraceExporter, ExporterNone)
	}
	if cfg.MetricExporter != ExporterPrometheus {
		t.Errorf("MetricExporter = %q, want %q", cfg.MetricExporter, ExporterPrometheus)
	}
}

func TestInit_NilContext(t *testing.T) {
	var ctx context.Context
	if _, err := Init(ctx, DefaultConfig()); !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_NoExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"trace", Config{TraceExporter: "jaeger", MetricExporter: ExporterNone}},
		{"metric", Config{TraceExporter: ExporterNone, MetricExporter: "statsd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.cfg)
			if !errors.Is(err, ErrUnknownExporter) {
				t.Errorf("Init() error = %v, want %v", err, ErrUnknownExporter)
			}
		})
	}
}

func TestInit_Prometheus(t *testing.T) {
	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)

	shutdown, err := Init(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() is nil with the prometheus exporter")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}
}

func TestStartSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), "mpls", "Service.Diagnostics")
	if TraceID(ctx) == "" {
		t.Error("TraceID() is empty inside a span")
	}
	End(span, errors.New("boom"), attribute.String("uri", "file:///A.java"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d ended spans, want 1", len(spans))
	}
	if spans[0].Name() != "Service.Diagnostics" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error || spans[0].Status().Description != "boom" {
		t.Errorf("span status = %+v", spans[0].Status())
	}
	if len(spans[0].Events()) != 1 {
		t.Errorf("got %d events, want the exception event", len(spans[0].Events()))
	}

	_, ok := StartSpan(context.Background(), "mpls", "ok")
	End(ok, nil)
	if got := recorder.Ended()[1].Status().Code; got != codes.Unset {
		t.Errorf("successful span status = %v", got)
	}
}

func TestTraceID_NoSpan(t *testing.T) {
	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID() = %q without a span", id)
	}
	RecordError(nil, errors.New("ignored"))
	End(nil, nil)
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewHTTPMetrics(mp.Meter("mpls"))
	if err != nil {
		t.Fatalf("NewHTTPMetrics() error = %v", err)
	}

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "mpls_http_requests_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("requests metric has type %T", md.Data)
			}
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value("route")
				counts[route.AsString()] += dp.Value
			}
		}
	}
	if counts["/items/:id"] != 2 {
		t.Errorf("route /items/:id count = %d, want 2", counts["/items/:id"])
	}
	if counts["unmatched"] != 1 {
		t.Errorf("unmatched count = %d, want 1", counts["unmatched"])
	}
}
