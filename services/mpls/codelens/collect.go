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
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mpls/services/mpls/lsp"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// DefaultPollInterval is how long the drain loop waits for a result
// before re-checking cancellation and completion.
const DefaultPollInterval = 25 * time.Millisecond

var tracer = otel.Tracer("mpls.codelens")

// Collector aggregates code lenses from every capable server.
//
// Description:
//
//	One task per server requests the document's lenses in parallel and
//	pushes them into a shared queue in the order the server emitted them.
//	The caller drains the queue until every task has finished and the
//	queue is empty. There is no overall timeout: a server that never
//	answers keeps the pass open until ctx is cancelled.
//
// Thread Safety:
//
//	Safe for concurrent use; each Collect call has its own queue.
type Collector struct {
	// Registry supplies the servers to query.
	Registry Registry

	// PollInterval bounds how quickly cancellation is observed.
	// DefaultPollInterval when zero.
	PollInterval time.Duration
}

// NewCollector creates a collector over registry with the default poll interval.
func NewCollector(registry Registry) *Collector {
	return &Collector{Registry: registry, PollInterval: DefaultPollInterval}
}

// hasCodeLens selects servers that provide code lenses.
func hasCodeLens(c *lsp.ServerCapabilities) bool {
	return c.HasCodeLensProvider()
}

// Collect runs one aggregation pass for doc.
//
// Description:
//
//	Per-server failures are logged and count as zero results; a null
//	response is zero results. Lenses whose start cannot be mapped onto
//	doc are dropped. Results are grouped by start offset after the
//	drain loop ends, in arrival order within each group.
//
// Outputs:
//
//	*Outcome - The grouped results, never partial
//	error - ctx.Err() when cancelled, or the registry error
func (c *Collector) Collect(ctx context.Context, doc *text.Document) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "Collector.Collect")
	defer span.End()
	span.SetAttributes(attribute.String("codelens.uri", doc.URI()))
	start := time.Now()

	outcome, err := c.collect(ctx, doc)

	status := "ok"
	switch {
	case err != nil && ctx.Err() != nil:
		status = "cancelled"
	case err != nil:
		status = "error"
		span.RecordError(err)
	}
	collectDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("codelens.results", outcome.Len()))
	return outcome, err
}

func (c *Collector) collect(ctx context.Context, doc *text.Document) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	servers, err := c.Registry.Servers(ctx, doc, hasCodeLens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("query servers: %w", err)
	}

	queue := newResultQueue()
	var (
		g            errgroup.Group
		dispatchDone atomic.Bool
	)
	for _, server := range servers {
		server := server
		g.Go(func() error {
			c.request(ctx, server, doc.URI(), queue)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		dispatchDone.Store(true)
	}()

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var arrived []PendingResult
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Completion first, then emptiness: a result pushed just before
		// the tasks finished is still seen by Len.
		if dispatchDone.Load() && queue.Len() == 0 {
			break
		}
		if r, ok := queue.Poll(interval); ok {
			arrived = append(arrived, r)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	outcome := &Outcome{Groups: make(map[int][]PendingResult)}
	for _, r := range arrived {
		offset, err := doc.PositionToOffset(toTextPosition(r.Lens.Range.Start))
		if err != nil {
			droppedResults.Inc()
			slog.Debug("Dropping code lens outside document",
				slog.String("server", r.Server.Name()),
				slog.String("uri", doc.URI()),
				slog.String("error", err.Error()),
			)
			continue
		}
		outcome.add(offset, r)
	}
	outcome.sortOffsets()
	return outcome, nil
}

// request asks one server for lenses and queues them. Errors and panics
// are logged and swallowed so one server cannot starve the others.
func (c *Collector) request(ctx context.Context, server LanguageServer, uri string, queue *resultQueue) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			serverFailures.WithLabelValues(server.Name()).Inc()
			slog.Error("Code lens request panicked",
				slog.String("server", server.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
		}
	}()

	lenses, err := server.CodeLens(ctx, uri)
	if err != nil {
		if ctx.Err() == nil {
			serverFailures.WithLabelValues(server.Name()).Inc()
			slog.Warn("Code lens request failed",
				slog.String("server", server.Name()),
				slog.String("uri", uri),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	results := make([]PendingResult, len(lenses))
	for i, lens := range lenses {
		results[i] = PendingResult{Lens: lens, Server: server}
	}
	serverResults.WithLabelValues(server.Name()).Add(float64(len(results)))
	queue.Push(results...)
}
