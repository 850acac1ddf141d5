// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codelens gathers code lenses from every capable language server
// in parallel and renders them as inlay elements with lazy resolution.
package codelens

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/AleutianAI/mpls/services/mpls/lsp"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// LanguageServer is a code lens source.
type LanguageServer interface {
	// ID identifies the server instance.
	ID() string

	// Name is the configured server name.
	Name() string

	// Capabilities returns the capabilities advertised at initialize.
	Capabilities() lsp.ServerCapabilities

	// CodeLens returns the lenses of a document; nil means none.
	CodeLens(ctx context.Context, uri string) ([]lsp.CodeLens, error)

	// ResolveCodeLens fills in the command of a lens.
	ResolveCodeLens(ctx context.Context, lens lsp.CodeLens) (lsp.CodeLens, error)

	// ExecuteCommand runs a command on the server.
	ExecuteCommand(ctx context.Context, cmd lsp.Command) (json.RawMessage, error)
}

// Registry returns the active servers for a document that satisfy pred.
type Registry interface {
	Servers(ctx context.Context, doc *text.Document, pred func(*lsp.ServerCapabilities) bool) ([]LanguageServer, error)
}

// ManagerRegistry exposes an lsp.Manager as a Registry. Requests to the
// returned servers are bounded by the manager's request timeout.
type ManagerRegistry struct {
	Manager *lsp.Manager
}

// Servers implements Registry.
func (r ManagerRegistry) Servers(ctx context.Context, doc *text.Document, pred func(*lsp.ServerCapabilities) bool) ([]LanguageServer, error) {
	servers, err := r.Manager.Servers(ctx, doc, pred)
	if err != nil {
		return nil, err
	}
	out := make([]LanguageServer, len(servers))
	for i, s := range servers {
		out[i] = managedServer{Server: s, manager: r.Manager}
	}
	return out, nil
}

// managedServer applies Manager.RequestContext to each request.
type managedServer struct {
	*lsp.Server
	manager *lsp.Manager
}

func (s managedServer) CodeLens(ctx context.Context, uri string) ([]lsp.CodeLens, error) {
	ctx, cancel := s.manager.RequestContext(ctx)
	defer cancel()
	return s.Server.CodeLens(ctx, uri)
}

func (s managedServer) ResolveCodeLens(ctx context.Context, lens lsp.CodeLens) (lsp.CodeLens, error) {
	ctx, cancel := s.manager.RequestContext(ctx)
	defer cancel()
	return s.Server.ResolveCodeLens(ctx, lens)
}

func (s managedServer) ExecuteCommand(ctx context.Context, cmd lsp.Command) (json.RawMessage, error) {
	ctx, cancel := s.manager.RequestContext(ctx)
	defer cancel()
	return s.Server.ExecuteCommand(ctx, cmd)
}

// PendingResult is one lens together with the server that produced it.
// It is never modified after creation.
type PendingResult struct {
	Lens   lsp.CodeLens
	Server LanguageServer
}

// Outcome is the result of one aggregation pass, grouped by the byte
// offset of each lens start.
type Outcome struct {
	// Offsets lists the group offsets in ascending order.
	Offsets []int

	// Groups holds the results per offset in arrival order.
	Groups map[int][]PendingResult
}

// Len returns the total number of results.
func (o *Outcome) Len() int {
	if o == nil {
		return 0
	}
	n := 0
	for _, g := range o.Groups {
		n += len(g)
	}
	return n
}

// add appends r to the group at offset.
func (o *Outcome) add(offset int, r PendingResult) {
	if _, ok := o.Groups[offset]; !ok {
		o.Offsets = append(o.Offsets, offset)
	}
	o.Groups[offset] = append(o.Groups[offset], r)
}

func (o *Outcome) sortOffsets() {
	sort.Ints(o.Offsets)
}

// toTextPosition converts a wire position.
func toTextPosition(p lsp.Position) text.Position {
	return text.Position{Line: p.Line, Character: p.Character}
}
