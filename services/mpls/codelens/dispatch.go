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
	"log/slog"
	"runtime"
	"sync"

	"github.com/AleutianAI/mpls/services/mpls/lsp"
)

// Dispatcher runs functions on the rendering goroutine.
type Dispatcher interface {
	// Post schedules fn and returns immediately.
	Post(fn func())
}

// ImmediateDispatcher runs each function on the calling goroutine.
// Suitable where there is no separate rendering goroutine.
type ImmediateDispatcher struct{}

// Post runs fn immediately.
func (ImmediateDispatcher) Post(fn func()) { fn() }

// LoopDispatcher runs posted functions one at a time on a single
// goroutine, in posting order.
//
// Thread Safety:
//
//	Post is safe for concurrent use.
type LoopDispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
}

// NewLoopDispatcher starts the dispatch goroutine.
func NewLoopDispatcher() *LoopDispatcher {
	d := &LoopDispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Post queues fn. Functions posted after Close run on the caller's goroutine.
func (d *LoopDispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		runSafely(fn)
		return
	}
	d.pending = append(d.pending, fn)
	d.cond.Signal()
	d.mu.Unlock()
}

// Close runs the functions already posted and stops the goroutine.
func (d *LoopDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}

func (d *LoopDispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()

		runSafely(fn)
	}
}

func runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("Dispatched function panicked",
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
		}
	}()
	fn()
}

// CommandExecutor runs the command of a clicked lens.
type CommandExecutor interface {
	Execute(ctx context.Context, server LanguageServer, cmd lsp.Command) error
}

// ServerExecutor sends commands to the server that produced the lens
// via workspace/executeCommand.
type ServerExecutor struct{}

// Execute implements CommandExecutor.
func (ServerExecutor) Execute(ctx context.Context, server LanguageServer, cmd lsp.Command) error {
	_, err := server.ExecuteCommand(ctx, cmd)
	return err
}
