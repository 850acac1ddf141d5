// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codelens

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// collectDuration measures one aggregation pass.
	// Labels: status (ok, cancelled, error)
	collectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpls",
		Subsystem: "codelens",
		Name:      "collect_duration_seconds",
		Help:      "Duration of code lens aggregation passes",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status"})

	// serverResults counts lenses received per server.
	// Labels: server
	serverResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpls",
		Subsystem: "codelens",
		Name:      "server_results_total",
		Help:      "Code lenses received from language servers",
	}, []string{"server"})

	// serverFailures counts swallowed per-server request failures.
	// Labels: server
	serverFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpls",
		Subsystem: "codelens",
		Name:      "server_failures_total",
		Help:      "Code lens requests that failed and were skipped",
	}, []string{"server"})

	// droppedResults counts lenses whose range could not be mapped.
	droppedResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpls",
		Subsystem: "codelens",
		Name:      "dropped_results_total",
		Help:      "Code lenses dropped because their range is outside the document",
	})

	// clicks counts label clicks.
	// Labels: path (resolve, direct), status (ok, error)
	clicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpls",
		Subsystem: "codelens",
		Name:      "clicks_total",
		Help:      "Code lens label clicks by execution path",
	}, []string{"path", "status"})
)
