// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mpls is the MicroProfile Java analysis service.
//
// It answers diagnostics, quick fix and code lens requests over a
// workspace of Java documents and exposes them over HTTP.
package mpls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mpls/services/mpls/codelens"
	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/lsp"
	"github.com/AleutianAI/mpls/services/mpls/quickfix"
	"github.com/AleutianAI/mpls/services/mpls/text"
	"github.com/AleutianAI/mpls/services/mpls/workspace"
)

// ServiceConfig configures the service.
type ServiceConfig struct {
	// DocumentFormat is used when a request does not name one.
	DocumentFormat diagnostics.DocumentFormat

	// PollInterval is the code lens drain loop poll interval.
	PollInterval time.Duration

	// Concurrency bounds documents checked in parallel.
	Concurrency int
}

// DefaultServiceConfig returns markdown messages, a 25ms poll interval
// and GOMAXPROCS parallel checks.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DocumentFormat: diagnostics.FormatMarkdown,
		PollInterval:   codelens.DefaultPollInterval,
		Concurrency:    runtime.GOMAXPROCS(0),
	}
}

// Service answers analysis requests over one workspace.
//
// Thread Safety:
//
//	Safe for concurrent use. Label clicks run through a single
//	dispatcher goroutine owned by the service.
type Service struct {
	config ServiceConfig
	ws     *workspace.Workspace

	diagnostics *diagnostics.Engine
	fixes       *quickfix.Engine
	collector   *codelens.Collector
	renderer    *codelens.Renderer
	dispatcher  *codelens.LoopDispatcher
	manager     *lsp.Manager

	labelsMu sync.Mutex
	labels   map[string]*codelens.Label
	labelIDs map[string][]string // uri -> ids of the latest render
}

// NewService creates a service over ws. Code lenses come from registry;
// a nil registry yields no lenses.
func NewService(config ServiceConfig, ws *workspace.Workspace, registry codelens.Registry) *Service {
	if config.Concurrency <= 0 {
		config.Concurrency = runtime.GOMAXPROCS(0)
	}
	if config.DocumentFormat == "" {
		config.DocumentFormat = diagnostics.FormatMarkdown
	}

	if registry == nil {
		registry = noServers{}
	}
	collector := codelens.NewCollector(registry)
	if config.PollInterval > 0 {
		collector.PollInterval = config.PollInterval
	}
	dispatcher := codelens.NewLoopDispatcher()

	return &Service{
		config:      config,
		ws:          ws,
		diagnostics: diagnostics.NewEngine(),
		fixes:       quickfix.NewEngine(),
		collector:   collector,
		renderer:    codelens.NewRenderer(dispatcher),
		dispatcher:  dispatcher,
		labels:      make(map[string]*codelens.Label),
		labelIDs:    make(map[string][]string),
	}
}

// noServers is the registry of a service without language servers.
type noServers struct{}

func (noServers) Servers(context.Context, *text.Document, func(*lsp.ServerCapabilities) bool) ([]codelens.LanguageServer, error) {
	return nil, nil
}

// WithManager attaches the LSP manager whose documents and servers the
// service closes.
func (s *Service) WithManager(m *lsp.Manager) *Service {
	s.manager = m
	return s
}

// Workspace returns the workspace the service analyzes.
func (s *Service) Workspace() *workspace.Workspace {
	return s.ws
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Open loads uri from disk, or stores content when it is non-empty.
//
// Outputs:
//
//	*text.Document - The current snapshot
//	error - ErrInvalidURI, a read or parse error
func (s *Service) Open(ctx context.Context, uri, content string) (doc *text.Document, err error) {
	ctx, done := startOperation(ctx, "open")
	defer func() { done(err) }()

	path, err := workspace.PathFromURI(uri)
	if err != nil {
		return nil, err
	}
	if content == "" {
		doc, err = s.ws.LoadFile(ctx, path)
	} else {
		doc, err = s.ws.Set(ctx, uri, content)
	}
	if err != nil {
		return nil, err
	}
	workspaceDocuments.Set(float64(s.ws.Len()))
	return doc, nil
}

// CloseDocument drops uri from the workspace and the language servers.
func (s *Service) CloseDocument(uri string) bool {
	s.forgetLabels(uri)
	if s.manager != nil {
		s.manager.CloseDocument(uri)
	}
	removed := s.ws.Remove(uri)
	workspaceDocuments.Set(float64(s.ws.Len()))
	return removed
}

// HandleChanges is a workspace.ChangeHandler: labels of changed
// documents are discarded and removed documents are closed.
func (s *Service) HandleChanges(changed, removed []string) {
	for _, uri := range changed {
		s.forgetLabels(uri)
	}
	for _, uri := range removed {
		s.forgetLabels(uri)
		if s.manager != nil {
			s.manager.CloseDocument(uri)
		}
	}
	workspaceDocuments.Set(float64(s.ws.Len()))
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Diagnostics checks documents of one workspace snapshot.
//
// Description:
//
//	Every document is checked against the same snapshot so that
//	cross-file rules see a consistent view. A document whose check fails
//	maps to an empty list; the failure is logged by the rule engine.
//
// Inputs:
//
//	ctx - Context for cancellation
//	uris - Documents to check; empty checks every document
//	format - Message format; empty uses the configured format
//
// Outputs:
//
//	map[string][]diagnostics.Diagnostic - Findings per URI
//	error - ErrDocumentNotFound or ctx error
func (s *Service) Diagnostics(ctx context.Context, uris []string, format diagnostics.DocumentFormat) (out map[string][]diagnostics.Diagnostic, err error) {
	ctx, done := startOperation(ctx, "diagnostics")
	defer func() { done(err) }()

	snap := s.ws.Snapshot()
	if len(uris) == 0 {
		uris = snap.URIs()
	}
	for _, uri := range uris {
		if _, _, err := snap.Document(uri); err != nil {
			return nil, err
		}
	}
	if format == "" {
		format = s.config.DocumentFormat
	}

	out = make(map[string][]diagnostics.Diagnostic, len(uris))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, uri := range uris {
		g.Go(func() error {
			doc, unit, _ := snap.Document(uri)
			diags, err := s.diagnostics.Diagnose(gctx, diagnostics.Request{
				Doc:     doc,
				Unit:    unit,
				Symbols: snap.Symbols,
				Format:  format,
			})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				documentFailures.Inc()
				diags = nil
			}
			if diags == nil {
				diags = []diagnostics.Diagnostic{}
			}
			for _, d := range diags {
				diagnosticsReported.WithLabelValues(string(d.Code)).Inc()
			}

			mu.Lock()
			out[uri] = diags
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// QUICK FIXES
// =============================================================================

// CodeActions returns the quick fixes for one diagnostic of uri.
//
// Description:
//
//	Actions are computed against the current snapshot of uri. With
//	WholeDocument each action becomes a single replacement of the whole
//	document; with Preview a unified diff is returned per action.
//
// Outputs:
//
//	*CodeActionResponse - Actions, empty when the code has no fix
//	error - ErrDocumentNotFound, quickfix.ErrDeclarationNotFound or a
//	        mapping error
func (s *Service) CodeActions(ctx context.Context, req CodeActionRequest) (resp *CodeActionResponse, err error) {
	ctx, done := startOperation(ctx, "codeaction")
	defer func() { done(err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, unit, err := s.ws.Document(req.URI)
	if err != nil {
		return nil, err
	}

	actions, err := s.fixes.CodeActions(doc, unit, req.Diagnostic)
	if err != nil {
		return nil, err
	}

	resp = &CodeActionResponse{Actions: make([]quickfix.CodeAction, 0, len(actions))}
	for _, action := range actions {
		if req.Preview {
			diff, err := quickfix.UnifiedDiff(doc, action)
			if err != nil {
				return nil, fmt.Errorf("preview %q: %w", action.Title, err)
			}
			resp.Diffs = append(resp.Diffs, diff)
		}
		if req.WholeDocument {
			action, err = quickfix.WholeDocument(doc, action)
			if err != nil {
				return nil, err
			}
		}
		resp.Actions = append(resp.Actions, action)
	}
	return resp, nil
}

// ApplyCodeAction applies action to the current snapshot of its
// document and stores the result as the next version.
//
// Outputs:
//
//	*text.Document - The new snapshot
//	error - ErrDocumentNotFound or *quickfix.StaleEditError
func (s *Service) ApplyCodeAction(ctx context.Context, action quickfix.CodeAction) (doc *text.Document, err error) {
	ctx, done := startOperation(ctx, "apply")
	defer func() { done(err) }()

	cur, _, err := s.ws.Document(action.Edit.URI)
	if err != nil {
		return nil, err
	}
	out, err := quickfix.Apply(cur, action.Edit)
	if err != nil {
		return nil, err
	}
	s.forgetLabels(cur.URI())
	return s.ws.Set(ctx, cur.URI(), out)
}

// =============================================================================
// CODE LENSES
// =============================================================================

// CodeLenses collects and renders the code lenses of uri.
//
// Description:
//
//	Lenses are gathered from every language server handling the
//	document and rendered into inlays. Each label gets an ID valid until
//	the document changes or its lenses are requested again.
//
// Outputs:
//
//	*CodeLensResponse - Inlays in offset order
//	error - ErrDocumentNotFound, a registry error or ctx error
func (s *Service) CodeLenses(ctx context.Context, uri string) (resp *CodeLensResponse, err error) {
	ctx, done := startOperation(ctx, "codelens")
	defer func() { done(err) }()

	doc, _, err := s.ws.Document(uri)
	if err != nil {
		return nil, err
	}
	outcome, err := s.collector.Collect(ctx, doc)
	if err != nil {
		return nil, err
	}
	inlays, err := s.renderer.Render(doc, outcome)
	if err != nil {
		return nil, err
	}

	resp = &CodeLensResponse{URI: uri, Version: doc.Version(), Inlays: make([]InlayView, 0, len(inlays))}
	ids := make([]string, 0, outcome.Len())
	registered := make(map[string]*codelens.Label, outcome.Len())
	for _, in := range inlays {
		view := InlayView{Offset: in.Offset, Position: in.Position, Labels: []LabelView{}}
		if len(in.Elements) > 0 {
			if sp, ok := in.Elements[0].(codelens.Spacer); ok {
				view.Indent = sp.Columns
			}
		}
		for _, l := range in.Labels() {
			id := uuid.NewString()
			ids = append(ids, id)
			registered[id] = l
			view.Labels = append(view.Labels, LabelView{
				ID:     id,
				Title:  l.Text,
				Server: l.Result.Server.Name(),
			})
		}
		resp.Inlays = append(resp.Inlays, view)
	}

	s.labelsMu.Lock()
	for _, old := range s.labelIDs[uri] {
		delete(s.labels, old)
	}
	for id, l := range registered {
		s.labels[id] = l
	}
	s.labelIDs[uri] = ids
	s.labelsMu.Unlock()

	return resp, nil
}

// ExecuteLens clicks the label with the given ID and waits for the
// command to finish.
//
// Outputs:
//
//	error - ErrLensNotFound, codelens.ErrNoCommand, ErrCommandFailed or
//	        ctx error
func (s *Service) ExecuteLens(ctx context.Context, id string) (err error) {
	ctx, done := startOperation(ctx, "execute")
	defer func() { done(err) }()

	s.labelsMu.Lock()
	label, ok := s.labels[id]
	s.labelsMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrLensNotFound, id)
	}

	select {
	case err := <-label.Click(ctx):
		if err != nil && !errors.Is(err, codelens.ErrNoCommand) && ctx.Err() == nil {
			return fmt.Errorf("%w: %w", ErrCommandFailed, err)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) forgetLabels(uri string) {
	s.labelsMu.Lock()
	defer s.labelsMu.Unlock()
	for _, id := range s.labelIDs[uri] {
		delete(s.labels, id)
	}
	delete(s.labelIDs, uri)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Ready reports the workspace size and the running language servers.
func (s *Service) Ready() ReadyResponse {
	servers := []string{}
	if s.manager != nil {
		servers = append(servers, s.manager.RunningServers()...)
	}
	return ReadyResponse{
		Ready:     true,
		Documents: s.ws.Len(),
		Servers:   servers,
	}
}

// Close stops the click dispatcher and shuts down the language servers.
func (s *Service) Close(ctx context.Context) error {
	s.dispatcher.Close()
	if s.manager == nil {
		return nil
	}
	if err := s.manager.ShutdownAll(ctx); err != nil {
		slog.Warn("language server shutdown incomplete", slog.String("error", err.Error()))
		return err
	}
	return nil
}
