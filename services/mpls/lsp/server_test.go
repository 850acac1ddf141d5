// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var javaConfig = ServerConfig{Name: "fake-java", Language: "java", Extensions: []string{".java"}}

func lensCaps(resolve bool) ServerCapabilities {
	return ServerCapabilities{CodeLensProvider: &CodeLensOptions{ResolveProvider: resolve}}
}

func startServer(t *testing.T, caps ServerCapabilities, handle func(string, json.RawMessage) (interface{}, *ResponseError)) (*Server, *fakeServer) {
	t.Helper()
	fake, stream := startFakeServer(t, caps, handle)
	srv := NewServerWithStream(javaConfig, "/tmp/project", stream)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, fake
}

func TestServerState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", ServerStateUninitialized.String())
	assert.Equal(t, "ready", ServerStateReady.String())
	assert.Equal(t, "stopped", ServerStateStopped.String())
	assert.Equal(t, "unknown", ServerState(42).String())
}

func TestServer_Start(t *testing.T) {
	srv, fake := startServer(t, lensCaps(true), nil)

	assert.Equal(t, ServerStateReady, srv.State())
	caps := srv.Capabilities()
	assert.True(t, caps.CodeLensResolveProvider())
	assert.NotEmpty(t, srv.ID())
	assert.Equal(t, "fake-java", srv.Name())
	assert.Equal(t, "java", srv.Language())
	assert.Equal(t, []string{"initialize"}, fake.seenRequests())
	assert.Eventually(t, func() bool {
		n := fake.seenNotifications()
		return len(n) == 1 && n[0] == "initialized"
	}, time.Second, 10*time.Millisecond)

	err := srv.Start(context.Background())
	assert.ErrorIs(t, err, ErrServerAlreadyStarted)
}

func TestServer_InstanceIDsAreUnique(t *testing.T) {
	a := NewServer(javaConfig, "/tmp")
	b := NewServer(javaConfig, "/tmp")
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestServer_CodeLens(t *testing.T) {
	handle := func(method string, params json.RawMessage) (interface{}, *ResponseError) {
		switch method {
		case "textDocument/codeLens":
			var p CodeLensParams
			_ = json.Unmarshal(params, &p)
			if p.TextDocument.URI == "file:///Empty.java" {
				return nil, nil
			}
			return []CodeLens{
				{Range: Range{Start: Position{Line: 2}, End: Position{Line: 2, Character: 5}}, Data: json.RawMessage(`{"n":1}`)},
				{Range: Range{Start: Position{Line: 4}}, Command: &Command{Title: "Run", Command: "run"}},
			}, nil
		case "codeLens/resolve":
			var lens CodeLens
			_ = json.Unmarshal(params, &lens)
			lens.Command = &Command{Title: "Resolved", Command: "resolved"}
			return lens, nil
		case "workspace/executeCommand":
			var p ExecuteCommandParams
			_ = json.Unmarshal(params, &p)
			return map[string]string{"ran": p.Command}, nil
		}
		return nil, &ResponseError{Code: CodeMethodNotFound, Message: method}
	}
	srv, _ := startServer(t, lensCaps(true), handle)
	ctx := context.Background()

	lenses, err := srv.CodeLens(ctx, "file:///Fields.java")
	require.NoError(t, err)
	require.Len(t, lenses, 2)
	assert.Nil(t, lenses[0].Command)
	assert.Equal(t, "Run", lenses[1].Command.Title)

	empty, err := srv.CodeLens(ctx, "file:///Empty.java")
	require.NoError(t, err)
	assert.Nil(t, empty)

	resolved, err := srv.ResolveCodeLens(ctx, lenses[0])
	require.NoError(t, err)
	require.NotNil(t, resolved.Command)
	assert.Equal(t, "Resolved", resolved.Command.Title)
	assert.JSONEq(t, `{"n":1}`, string(resolved.Data))

	out, err := srv.ExecuteCommand(ctx, *lenses[1].Command)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ran":"run"}`, string(out))
}

func TestServer_SyncDocument(t *testing.T) {
	srv, fake := startServer(t, lensCaps(false), nil)

	require.NoError(t, srv.SyncDocument("file:///A.java", 1, "class A {}"))
	require.NoError(t, srv.SyncDocument("file:///A.java", 1, "class A {}"))
	require.NoError(t, srv.SyncDocument("file:///A.java", 2, "class A { }"))
	require.NoError(t, srv.CloseDocument("file:///A.java"))
	require.NoError(t, srv.CloseDocument("file:///A.java"))

	assert.Eventually(t, func() bool {
		n := fake.seenNotifications()
		return len(n) == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"initialized", "textDocument/didOpen", "textDocument/didChange", "textDocument/didClose"}, fake.seenNotifications())
}

func TestServer_RequestNotRunning(t *testing.T) {
	srv := NewServer(javaConfig, "/tmp")
	_, err := srv.CodeLens(context.Background(), "file:///A.java")
	assert.ErrorIs(t, err, ErrServerNotRunning)
	assert.ErrorIs(t, srv.Notify("x", nil), ErrServerNotRunning)
}

func TestServer_StartNotInstalled(t *testing.T) {
	srv := NewServer(ServerConfig{Name: "missing", Command: "definitely-not-a-language-server-xyz"}, t.TempDir())
	err := srv.Start(context.Background())
	assert.ErrorIs(t, err, ErrServerNotInstalled)
	assert.Equal(t, ServerStateStopped, srv.State())
}

func TestServer_Shutdown(t *testing.T) {
	srv, fake := startServer(t, lensCaps(false), nil)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, ServerStateStopped, srv.State())
	assert.Contains(t, fake.seenRequests(), "shutdown")
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerCapabilities(t *testing.T) {
	var none *ServerCapabilities
	assert.False(t, none.HasCodeLensProvider())
	assert.False(t, none.ExecutesCommand("x"))

	caps := ServerCapabilities{
		CodeLensProvider:       &CodeLensOptions{},
		ExecuteCommandProvider: &ExecuteCommandOptions{Commands: []string{"a"}},
	}
	assert.True(t, caps.HasCodeLensProvider())
	assert.False(t, caps.CodeLensResolveProvider())
	assert.True(t, caps.ExecutesCommand("a"))
	assert.False(t, caps.ExecutesCommand("b"))

	var decoded ServerCapabilities
	require.NoError(t, json.Unmarshal([]byte(`{"codeLensProvider":{"resolveProvider":true}}`), &decoded))
	assert.True(t, decoded.CodeLensResolveProvider())
}
