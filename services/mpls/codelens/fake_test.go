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
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/mpls/services/mpls/lsp"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// fakeServer is an in-process LanguageServer.
type fakeServer struct {
	name   string
	caps   lsp.ServerCapabilities
	lenses []lsp.CodeLens
	err    error
	panics bool
	delay  time.Duration
	hang   bool

	// resolved replaces the command of resolved lenses; nil resolves to
	// a lens without command.
	resolved   *lsp.Command
	resolveErr error

	lensCalls    atomic.Int32
	resolveCalls atomic.Int32

	mu       sync.Mutex
	executed []lsp.Command
}

func (f *fakeServer) ID() string                           { return "id-" + f.name }
func (f *fakeServer) Name() string                         { return f.name }
func (f *fakeServer) Capabilities() lsp.ServerCapabilities { return f.caps }

func (f *fakeServer) CodeLens(ctx context.Context, uri string) ([]lsp.CodeLens, error) {
	f.lensCalls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.lenses, f.err
}

func (f *fakeServer) ResolveCodeLens(ctx context.Context, lens lsp.CodeLens) (lsp.CodeLens, error) {
	f.resolveCalls.Add(1)
	if f.resolveErr != nil {
		return lsp.CodeLens{}, f.resolveErr
	}
	lens.Command = f.resolved
	return lens, nil
}

func (f *fakeServer) ExecuteCommand(ctx context.Context, cmd lsp.Command) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, cmd)
	return json.RawMessage(`null`), nil
}

func (f *fakeServer) executedCommands() []lsp.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lsp.Command(nil), f.executed...)
}

// fakeRegistry filters a fixed server list by capability.
type fakeRegistry struct {
	servers []*fakeServer
	err     error
}

func (r *fakeRegistry) Servers(ctx context.Context, doc *text.Document, pred func(*lsp.ServerCapabilities) bool) ([]LanguageServer, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []LanguageServer
	for _, s := range r.servers {
		caps := s.Capabilities()
		if pred(&caps) {
			out = append(out, s)
		}
	}
	return out, nil
}

func lensCaps(resolve bool) lsp.ServerCapabilities {
	return lsp.ServerCapabilities{CodeLensProvider: &lsp.CodeLensOptions{ResolveProvider: resolve}}
}

func lensAt(line, char int, title string) lsp.CodeLens {
	lens := lsp.CodeLens{Range: lsp.Range{
		Start: lsp.Position{Line: line, Character: char},
		End:   lsp.Position{Line: line, Character: char + 1},
	}}
	if title != "" {
		lens.Command = &lsp.Command{Title: title, Command: "cmd." + title}
	}
	return lens
}
