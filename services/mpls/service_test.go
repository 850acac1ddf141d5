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
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mpls/services/mpls/codelens"
	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/lsp"
	"github.com/AleutianAI/mpls/services/mpls/quickfix"
	"github.com/AleutianAI/mpls/services/mpls/text"
	"github.com/AleutianAI/mpls/services/mpls/workspace"
)

const quickstartDir = "testdata/rest-client-quickstart"

var sourceDir = filepath.Join(quickstartDir, "src", "main", "java", "org", "acme", "restclient")

// =============================================================================
// Fakes
// =============================================================================

// stubServer is an in-process language server.
type stubServer struct {
	name    string
	caps    lsp.ServerCapabilities
	lenses  []lsp.CodeLens
	execErr error

	mu       sync.Mutex
	executed []lsp.Command
}

func (s *stubServer) ID() string                           { return "stub-" + s.name }
func (s *stubServer) Name() string                         { return s.name }
func (s *stubServer) Capabilities() lsp.ServerCapabilities { return s.caps }

func (s *stubServer) CodeLens(ctx context.Context, uri string) ([]lsp.CodeLens, error) {
	return s.lenses, nil
}

func (s *stubServer) ResolveCodeLens(ctx context.Context, lens lsp.CodeLens) (lsp.CodeLens, error) {
	return lens, nil
}

func (s *stubServer) ExecuteCommand(ctx context.Context, cmd lsp.Command) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, cmd)
	return nil, s.execErr
}

func (s *stubServer) commands() []lsp.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lsp.Command(nil), s.executed...)
}

type stubRegistry []*stubServer

func (r stubRegistry) Servers(ctx context.Context, doc *text.Document, pred func(*lsp.ServerCapabilities) bool) ([]codelens.LanguageServer, error) {
	var out []codelens.LanguageServer
	for _, s := range r {
		caps := s.Capabilities()
		if pred(&caps) {
			out = append(out, s)
		}
	}
	return out, nil
}

func lens(line, char int, title, command string) lsp.CodeLens {
	return lsp.CodeLens{
		Range: lsp.Range{
			Start: lsp.Position{Line: line, Character: char},
			End:   lsp.Position{Line: line, Character: char + 6},
		},
		Command: &lsp.Command{Title: title, Command: command},
	}
}

// =============================================================================
// Helpers
// =============================================================================

func newTestService(t *testing.T, registry codelens.Registry) *Service {
	t.Helper()
	ws, err := workspace.New(quickstartDir, workspace.Options{})
	require.NoError(t, err)
	_, err = ws.Load(context.Background())
	require.NoError(t, err)

	svc := NewService(DefaultServiceConfig(), ws, registry)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func fixtureURI(t *testing.T, name string) string {
	t.Helper()
	uri, err := workspace.URIFromPath(filepath.Join(sourceDir, name))
	require.NoError(t, err)
	return uri
}

func diagnosticWithCode(t *testing.T, diags []diagnostics.Diagnostic, code diagnostics.Code) diagnostics.Diagnostic {
	t.Helper()
	for _, d := range diags {
		if d.Code == code {
			return d
		}
	}
	t.Fatalf("no diagnostic with code %s", code)
	return diagnostics.Diagnostic{}
}

// =============================================================================
// Tests
// =============================================================================

func TestService_Diagnostics(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	all, err := svc.Diagnostics(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, all, 4)

	fields := all[fixtureURI(t, "Fields.java")]
	require.Len(t, fields, 5)
	assert.Equal(t, diagnostics.RestClientAnnotationMissing, fields[2].Code)
	assert.Contains(t, fields[0].Message, "`org.acme.restclient.MyService`")

	iface := all[fixtureURI(t, "MyService.java")]
	require.Len(t, iface, 1)
	assert.Equal(t, diagnostics.RegisterRestClientAnnotationMissing, iface[0].Code)

	assert.Empty(t, all[fixtureURI(t, "Country.java")])
	assert.NotNil(t, all[fixtureURI(t, "Country.java")], "documents without findings map to an empty list")

	plain, err := svc.Diagnostics(ctx, []string{fixtureURI(t, "MyService.java")}, diagnostics.FormatPlainText)
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.True(t, strings.HasPrefix(plain[fixtureURI(t, "MyService.java")][0].Message, "The interface MyService "))
}

func TestService_DiagnosticsErrors(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Diagnostics(context.Background(), []string{"file:///nowhere/A.java"}, "")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Diagnostics(ctx, nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_CodeActionsAndApply(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	uri := fixtureURI(t, "Fields.java")

	all, err := svc.Diagnostics(ctx, []string{uri}, "")
	require.NoError(t, err)
	diag := diagnosticWithCode(t, all[uri], diagnostics.InjectAnnotationMissing)

	resp, err := svc.CodeActions(ctx, CodeActionRequest{URI: uri, Diagnostic: diag, Preview: true})
	require.NoError(t, err)
	require.Len(t, resp.Actions, 1)
	require.Len(t, resp.Diffs, 1)
	assert.Equal(t, "Insert @Inject", resp.Actions[0].Title)
	assert.Equal(t, quickfix.KindQuickFix, resp.Actions[0].Kind)
	assert.Contains(t, resp.Diffs[0], "+    @Inject\n")
	assert.Contains(t, resp.Diffs[0], "+import javax.inject.Inject;\n")

	whole, err := svc.CodeActions(ctx, CodeActionRequest{URI: uri, Diagnostic: diag, WholeDocument: true})
	require.NoError(t, err)
	require.Len(t, whole.Actions, 1)
	assert.Len(t, whole.Actions[0].Edit.Edits, 1)

	doc, err := svc.ApplyCodeAction(ctx, resp.Actions[0])
	require.NoError(t, err)
	assert.Equal(t, int32(2), doc.Version())
	assert.Contains(t, doc.Text(), "    @Inject\n    @RestClient\n    public CountriesService InjectAnnotationMissing;")

	after, err := svc.Diagnostics(ctx, []string{uri}, "")
	require.NoError(t, err)
	assert.Len(t, after[uri], 4)

	_, err = svc.ApplyCodeAction(ctx, resp.Actions[0])
	var stale *quickfix.StaleEditError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, int32(1), stale.Expected)
	assert.Equal(t, int32(2), stale.Actual)
}

func TestService_CodeActionsWithoutFix(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	uri := fixtureURI(t, "Fields.java")

	all, err := svc.Diagnostics(ctx, []string{uri}, "")
	require.NoError(t, err)

	resp, err := svc.CodeActions(ctx, CodeActionRequest{URI: uri, Diagnostic: all[uri][0]})
	require.NoError(t, err)
	assert.Empty(t, resp.Actions, "the uncoded field warning has no quick fix")

	_, err = svc.CodeActions(ctx, CodeActionRequest{URI: "file:///nowhere/A.java"})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestService_CodeLenses(t *testing.T) {
	refs := &stubServer{
		name:   "refs",
		caps:   lsp.ServerCapabilities{CodeLensProvider: &lsp.CodeLensOptions{}},
		lenses: []lsp.CodeLens{lens(12, 4, "2 references", "refs.show")},
	}
	runner := &stubServer{
		name: "runner",
		caps: lsp.ServerCapabilities{CodeLensProvider: &lsp.CodeLensOptions{}},
		lenses: []lsp.CodeLens{
			lens(6, 0, "Run", "runner.run"),
			lens(12, 4, "Debug", "runner.debug"),
		},
	}
	silent := &stubServer{name: "silent"}

	svc := newTestService(t, stubRegistry{refs, runner, silent})
	ctx := context.Background()
	uri := fixtureURI(t, "Fields.java")

	resp, err := svc.CodeLenses(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, int32(1), resp.Version)
	require.Len(t, resp.Inlays, 2)

	first := resp.Inlays[0]
	assert.Equal(t, text.Position{Line: 6, Character: 0}, first.Position)
	assert.Equal(t, 0, first.Indent)
	require.Len(t, first.Labels, 1)
	assert.Equal(t, "Run", first.Labels[0].Title)

	second := resp.Inlays[1]
	assert.Equal(t, text.Position{Line: 12, Character: 4}, second.Position)
	assert.Equal(t, 4, second.Indent)
	require.Len(t, second.Labels, 2)
	titles := []string{second.Labels[0].Title, second.Labels[1].Title}
	assert.ElementsMatch(t, []string{"2 references", "Debug"}, titles)

	var debugID string
	for _, l := range second.Labels {
		assert.NotEmpty(t, l.ID)
		if l.Title == "Debug" {
			debugID = l.ID
			assert.Equal(t, "runner", l.Server)
		}
	}

	require.NoError(t, svc.ExecuteLens(ctx, debugID))
	require.Len(t, runner.commands(), 1)
	assert.Equal(t, "runner.debug", runner.commands()[0].Command)
	assert.Empty(t, refs.commands())

	err = svc.ExecuteLens(ctx, "unknown")
	assert.ErrorIs(t, err, ErrLensNotFound)

	// A new render invalidates the previous label IDs.
	_, err = svc.CodeLenses(ctx, uri)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ExecuteLens(ctx, debugID), ErrLensNotFound)
}

func TestService_CodeLensesUntitledGroup(t *testing.T) {
	untitled := &stubServer{
		name:   "untitled",
		caps:   lsp.ServerCapabilities{CodeLensProvider: &lsp.CodeLensOptions{}},
		lenses: []lsp.CodeLens{lens(12, 4, "", "")},
	}
	svc := newTestService(t, stubRegistry{untitled})

	resp, err := svc.CodeLenses(context.Background(), fixtureURI(t, "Fields.java"))
	require.NoError(t, err)
	require.Len(t, resp.Inlays, 1)
	assert.Equal(t, text.Position{Line: 12, Character: 4}, resp.Inlays[0].Position)
	assert.Equal(t, 4, resp.Inlays[0].Indent)
	assert.NotNil(t, resp.Inlays[0].Labels)
	assert.Empty(t, resp.Inlays[0].Labels)
}

func TestService_ExecuteLensFailure(t *testing.T) {
	failing := &stubServer{
		name:    "failing",
		caps:    lsp.ServerCapabilities{CodeLensProvider: &lsp.CodeLensOptions{}},
		lenses:  []lsp.CodeLens{lens(6, 0, "Run", "run")},
		execErr: errors.New("server exploded"),
	}
	svc := newTestService(t, stubRegistry{failing})
	ctx := context.Background()

	resp, err := svc.CodeLenses(ctx, fixtureURI(t, "Fields.java"))
	require.NoError(t, err)
	require.Len(t, resp.Inlays, 1)

	err = svc.ExecuteLens(ctx, resp.Inlays[0].Labels[0].ID)
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "server exploded")
}

func TestService_OpenAndClose(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	uri := "file:///virtual/org/acme/Client.java"
	doc, err := svc.Open(ctx, uri, `package org.acme;

import org.acme.restclient.CountriesService;

public class Client {
    CountriesService countries;
}
`)
	require.NoError(t, err)
	assert.Equal(t, int32(1), doc.Version())

	all, err := svc.Diagnostics(ctx, []string{uri}, "")
	require.NoError(t, err)
	require.Len(t, all[uri], 1)
	assert.Equal(t, diagnostics.InjectAndRestClientAnnotationMissing, all[uri][0].Code)

	_, err = svc.Open(ctx, "http://example.com/A.java", "class A {}")
	assert.ErrorIs(t, err, ErrInvalidURI)

	assert.True(t, svc.CloseDocument(uri))
	assert.False(t, svc.CloseDocument(uri))
	_, err = svc.Diagnostics(ctx, []string{uri}, "")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	ready := svc.Ready()
	assert.True(t, ready.Ready)
	assert.Equal(t, 4, ready.Documents)
	assert.Empty(t, ready.Servers)
}
