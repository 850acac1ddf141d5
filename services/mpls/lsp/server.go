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
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientName is reported to servers in the initialize request.
const ClientName = "mpls"

// =============================================================================
// SERVER STATE
// =============================================================================

// ServerState represents the lifecycle state of an LSP server.
type ServerState int

const (
	// ServerStateUninitialized is the initial state before Start is called.
	ServerStateUninitialized ServerState = iota

	// ServerStateStarting means the connection is being established.
	ServerStateStarting

	// ServerStateReady means the server is initialized and ready for requests.
	ServerStateReady

	// ServerStateStopping means the server is shutting down.
	ServerStateStopping

	// ServerStateStopped means the server has terminated.
	ServerStateStopped
)

// String returns a human-readable state name.
func (s ServerState) String() string {
	names := []string{"uninitialized", "starting", "ready", "stopping", "stopped"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// SERVER
// =============================================================================

// Server is one connection to a language server.
//
// Description:
//
//	Owns the transport (child process, TCP or WebSocket connection),
//	performs the initialize handshake, keeps open documents in sync and
//	exposes the code lens requests.
//
// Thread Safety:
//
//	Safe for concurrent use after Start() returns successfully.
type Server struct {
	id       string
	config   ServerConfig
	rootPath string

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stream Stream

	protocol     *Protocol
	capabilities ServerCapabilities

	state   ServerState
	stateMu sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}

	lastUsed   time.Time
	lastUsedMu sync.Mutex

	docs   map[string]int32
	docsMu sync.Mutex
}

// NewServer creates a server instance (not started).
//
// Inputs:
//
//	config - How to reach the server
//	rootPath - Absolute path to the workspace root
func NewServer(config ServerConfig, rootPath string) *Server {
	return &Server{
		id:       uuid.NewString(),
		config:   config,
		rootPath: rootPath,
		state:    ServerStateUninitialized,
		readDone: make(chan struct{}),
		lastUsed: time.Now(),
		docs:     make(map[string]int32),
	}
}

// NewServerWithStream creates a server that talks over an already
// connected stream instead of dialing its configured transport.
func NewServerWithStream(config ServerConfig, rootPath string, stream Stream) *Server {
	s := NewServer(config, rootPath)
	s.stream = stream
	return s
}

// Start connects to the server and initializes it.
//
// Errors:
//
//	ErrServerNotInstalled - Stdio server binary not found
//	ErrServerAlreadyStarted - Start called on a non-uninitialized server
//	ErrInitializeFailed - LSP initialize handshake failed
//
// Thread Safety:
//
//	Safe for concurrent use, but only the first caller will start the server.
func (s *Server) Start(ctx context.Context) (err error) {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.stateMu.Lock()
	if s.state != ServerStateUninitialized {
		s.stateMu.Unlock()
		return ErrServerAlreadyStarted
	}
	s.state = ServerStateStarting
	s.stateMu.Unlock()

	defer func() { recordServerStart(ctx, s.config.Name, err == nil) }()

	// Server context is independent of the caller's context.
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.stream == nil {
		if err := s.connect(ctx); err != nil {
			s.cleanup()
			return err
		}
	}

	s.protocol = NewProtocol(s.stream)
	s.protocol.OnNotification(s.handleNotification)

	go func() {
		defer close(s.readDone)
		if err := s.protocol.ReadLoop(s.ctx); err != nil && s.State() == ServerStateReady {
			slog.Warn("LSP server connection lost",
				slog.String("server", s.config.Name),
				slog.String("error", err.Error()),
			)
			s.setState(ServerStateStopped)
		}
	}()

	if err := s.initialize(ctx); err != nil {
		_ = s.Shutdown(ctx)
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}

	s.setState(ServerStateReady)
	s.touchLastUsed()

	slog.Info("LSP server ready",
		slog.String("server", s.config.Name),
		slog.String("id", s.id),
		slog.Bool("code_lens", s.capabilities.HasCodeLensProvider()),
		slog.Bool("code_lens_resolve", s.capabilities.CodeLensResolveProvider()),
	)
	return nil
}

// connect establishes the configured transport.
func (s *Server) connect(ctx context.Context) error {
	switch s.config.transport() {
	case TransportTCP:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", s.config.Address)
		if err != nil {
			return fmt.Errorf("dial %s: %w", s.config.Address, err)
		}
		s.stream = NewHeaderStream(conn, conn, conn)

	case TransportWebSocket:
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.config.URL, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", s.config.URL, err)
		}
		s.stream = NewWebSocketStream(conn)

	case TransportStdio:
		path, err := exec.LookPath(s.config.Command)
		if err != nil {
			slog.Warn("LSP server not installed",
				slog.String("server", s.config.Name),
				slog.String("command", s.config.Command),
			)
			return fmt.Errorf("%w: %s", ErrServerNotInstalled, s.config.Command)
		}

		slog.Info("Starting LSP server",
			slog.String("server", s.config.Name),
			slog.String("command", path),
			slog.String("root_path", s.rootPath),
		)

		s.cmd = exec.CommandContext(s.ctx, path, s.config.Args...)
		s.cmd.Dir = s.rootPath

		stdin, err := s.cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		s.stdout, err = s.cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		if err := s.cmd.Start(); err != nil {
			return fmt.Errorf("start process: %w", err)
		}
		s.stream = NewHeaderStream(s.stdout, stdin, stdin)

	default:
		return fmt.Errorf("unknown transport %q for server %s", s.config.Transport, s.config.Name)
	}
	return nil
}

// initialize performs the LSP initialize handshake.
func (s *Server) initialize(ctx context.Context) error {
	rootURI := "file://" + s.rootPath
	params := InitializeParams{
		ProcessID:  os.Getpid(),
		ClientInfo: &ClientInfo{Name: ClientName},
		RootURI:    rootURI,
		RootPath:   s.rootPath,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Synchronization: &TextDocumentSyncClientCapabilities{},
				CodeLens:        &CodeLensClientCapabilities{},
			},
			Workspace: WorkspaceClientCapabilities{
				Configuration:  true,
				ExecuteCommand: &ExecuteCommandClientCapabilities{},
			},
		},
		InitializationOptions: s.config.InitializationOptions,
		WorkspaceFolders:      []WorkspaceFolder{{URI: rootURI, Name: "workspace"}},
	}

	resp, err := s.protocol.SendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	s.capabilities = result.Capabilities

	if err := s.protocol.SendNotification("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// handleNotification logs the server's log and message notifications.
func (s *Server) handleNotification(method string, params json.RawMessage) {
	switch method {
	case "window/logMessage", "window/showMessage":
		var msg struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params, &msg); err != nil {
			return
		}
		slog.Debug("LSP server message",
			slog.String("server", s.config.Name),
			slog.Int("type", msg.Type),
			slog.String("message", msg.Message),
		)
	}
}

// Shutdown gracefully shuts down the server.
//
// Description:
//
//	Sends shutdown and exit, closes the transport and waits for the
//	process (if any) to terminate, killing it after five seconds.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state == ServerStateStopped || s.state == ServerStateStopping {
		s.stateMu.Unlock()
		return nil
	}
	s.state = ServerStateStopping
	s.stateMu.Unlock()

	slog.Info("Shutting down LSP server", slog.String("server", s.config.Name))

	defer s.cleanup()

	if s.protocol != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		_, _ = s.protocol.SendRequest(shutdownCtx, "shutdown", nil)
		_ = s.protocol.SendNotification("exit", nil)
		s.protocol.Close()
	}

	if s.stream != nil {
		_ = s.stream.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- s.cmd.Wait() }()

		select {
		case <-time.After(5 * time.Second):
			_ = s.cmd.Process.Kill()
			<-done
		case <-done:
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.protocol != nil {
		select {
		case <-s.readDone:
		case <-time.After(time.Second):
		}
	}
	return nil
}

// cleanup releases resources and sets state to stopped.
func (s *Server) cleanup() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stream != nil {
		_ = s.stream.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	s.setState(ServerStateStopped)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ID returns the unique instance id of this connection.
func (s *Server) ID() string {
	return s.id
}

// Name returns the configured server name.
func (s *Server) Name() string {
	return s.config.Name
}

// Language returns the LSP language identifier of the server.
func (s *Server) Language() string {
	return s.config.Language
}

// State returns the current server state.
func (s *Server) State() ServerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Capabilities returns the capabilities reported during initialization.
func (s *Server) Capabilities() ServerCapabilities {
	return s.capabilities
}

// LastUsed returns when the server was last used.
func (s *Server) LastUsed() time.Time {
	s.lastUsedMu.Lock()
	defer s.lastUsedMu.Unlock()
	return s.lastUsed
}

// =============================================================================
// REQUEST METHODS
// =============================================================================

// Request sends an LSP request and waits for the response.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (s *Server) Request(ctx context.Context, method string, params interface{}) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if s.State() != ServerStateReady {
		return nil, ErrServerNotRunning
	}
	s.touchLastUsed()

	ctx, span := startRequestSpan(ctx, s.config.Name, method)
	defer span.End()
	start := time.Now()

	resp, err := s.protocol.SendRequest(ctx, method, params)
	recordRequestMetrics(ctx, s.config.Name, method, time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

// Notify sends an LSP notification.
func (s *Server) Notify(method string, params interface{}) error {
	if s.State() != ServerStateReady {
		return ErrServerNotRunning
	}
	s.touchLastUsed()
	return s.protocol.SendNotification(method, params)
}

// SyncDocument makes the server's view of uri match version and text.
//
// Description:
//
//	Sends didOpen the first time a document is seen and a full-text
//	didChange when the version differs from the last one sent. Does
//	nothing when the server already has this version.
func (s *Server) SyncDocument(uri string, version int32, text string) error {
	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	sent, open := s.docs[uri]
	switch {
	case !open:
		err := s.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{URI: uri, LanguageID: s.config.Language, Version: version, Text: text},
		})
		if err != nil {
			return fmt.Errorf("didOpen %s: %w", uri, err)
		}
	case sent != version:
		err := s.Notify("textDocument/didChange", DidChangeTextDocumentParams{
			TextDocument:   VersionedTextDocumentIdentifier{URI: uri, Version: version},
			ContentChanges: []TextDocumentContentChangeEvent{{Text: text}},
		})
		if err != nil {
			return fmt.Errorf("didChange %s: %w", uri, err)
		}
	default:
		return nil
	}
	s.docs[uri] = version
	return nil
}

// CloseDocument sends didClose for an open document.
func (s *Server) CloseDocument(uri string) error {
	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	if _, open := s.docs[uri]; !open {
		return nil
	}
	delete(s.docs, uri)
	return s.Notify("textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// CodeLens requests the code lenses of uri. A null result yields nil.
func (s *Server) CodeLens(ctx context.Context, uri string) ([]CodeLens, error) {
	resp, err := s.Request(ctx, "textDocument/codeLens", CodeLensParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, nil
	}
	var lenses []CodeLens
	if err := json.Unmarshal(resp.Result, &lenses); err != nil {
		return nil, fmt.Errorf("%w: codeLens: %v", ErrInvalidResponse, err)
	}
	return lenses, nil
}

// ResolveCodeLens asks the server to fill in the command of lens.
func (s *Server) ResolveCodeLens(ctx context.Context, lens CodeLens) (CodeLens, error) {
	resp, err := s.Request(ctx, "codeLens/resolve", lens)
	if err != nil {
		return CodeLens{}, err
	}
	var resolved CodeLens
	if err := json.Unmarshal(resp.Result, &resolved); err != nil {
		return CodeLens{}, fmt.Errorf("%w: codeLens/resolve: %v", ErrInvalidResponse, err)
	}
	return resolved, nil
}

// ExecuteCommand asks the server to run cmd and returns its raw result.
func (s *Server) ExecuteCommand(ctx context.Context, cmd Command) (json.RawMessage, error) {
	resp, err := s.Request(ctx, "workspace/executeCommand", ExecuteCommandParams{
		Command:   cmd.Command,
		Arguments: cmd.Arguments,
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Server) setState(state ServerState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Server) touchLastUsed() {
	s.lastUsedMu.Lock()
	s.lastUsed = time.Now()
	s.lastUsedMu.Unlock()
}
