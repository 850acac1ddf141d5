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
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/mpls/services/mpls/text"
)

// =============================================================================
// MANAGER CONFIG
// =============================================================================

// ManagerConfig configures the LSP manager.
type ManagerConfig struct {
	// IdleTimeout is how long a server can be idle before being shut down.
	// Set to 0 to disable idle shutdown.
	IdleTimeout time.Duration

	// StartupTimeout is the maximum time to wait for a server to start.
	StartupTimeout time.Duration

	// RequestTimeout bounds each request to a server. Zero disables it.
	RequestTimeout time.Duration
}

// DefaultManagerConfig returns the default manager settings: 10 minute
// idle timeout, 30 second startup timeout and no request timeout.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleTimeout:    10 * time.Minute,
		StartupTimeout: 30 * time.Second,
	}
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager starts configured language servers on demand and answers
// capability-filtered registry queries.
//
// Description:
//
//	Each configured server has at most one live connection per
//	workspace. Servers are started lazily the first time a document
//	they handle is queried and shut down after the idle timeout.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Manager struct {
	config   ManagerConfig
	rootPath string
	configs  *ConfigRegistry

	servers   map[string]*Server
	serversMu sync.RWMutex
	startMu   sync.Map // name -> *sync.Mutex for startup serialization

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager with the default server registry.
func NewManager(rootPath string, config ManagerConfig) *Manager {
	return NewManagerWithRegistry(rootPath, config, NewConfigRegistry())
}

// NewManagerWithRegistry creates a manager over an explicit registry.
func NewManagerWithRegistry(rootPath string, config ManagerConfig, configs *ConfigRegistry) *Manager {
	return &Manager{
		config:   config,
		rootPath: rootPath,
		configs:  configs,
		servers:  make(map[string]*Server),
		stopped:  make(chan struct{}),
	}
}

// GetOrSpawn returns the server registered under name, starting it if needed.
//
// Description:
//
//	Uses double-check locking so only one connection is started per
//	server even under concurrent requests. A stopped connection is
//	replaced.
//
// Errors:
//
//	ErrManagerStopped - ShutdownAll was called
//	ErrUnknownServer - No configuration under name
//	ErrServerNotInstalled, ErrInitializeFailed - Startup failed
//
// Thread Safety:
//
//	Safe for concurrent use.
func (m *Manager) GetOrSpawn(ctx context.Context, name string) (*Server, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if m.isStopped() {
		return nil, ErrManagerStopped
	}

	if server := m.Get(name); server != nil {
		return server, nil
	}

	lockI, _ := m.startMu.LoadOrStore(name, &sync.Mutex{})
	lock := lockI.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	m.serversMu.Lock()
	server, ok := m.servers[name]
	if ok && server.State() == ServerStateReady {
		m.serversMu.Unlock()
		return server, nil
	}
	if ok {
		delete(m.servers, name)
	}
	m.serversMu.Unlock()

	config, ok := m.configs.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}

	server = NewServer(config, m.rootPath)

	startCtx := ctx
	if m.config.StartupTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, m.config.StartupTimeout)
		defer cancel()
	}
	if err := server.Start(startCtx); err != nil {
		return nil, err
	}

	m.serversMu.Lock()
	m.servers[name] = server
	m.serversMu.Unlock()

	// ShutdownAll may have run while the server was starting.
	if m.isStopped() {
		_ = m.Shutdown(context.Background(), name)
		return nil, ErrManagerStopped
	}
	return server, nil
}

// Get returns the ready server registered under name, or nil.
func (m *Manager) Get(name string) *Server {
	m.serversMu.RLock()
	defer m.serversMu.RUnlock()

	server, ok := m.servers[name]
	if ok && server.State() == ServerStateReady {
		return server
	}
	return nil
}

// Servers returns the servers handling doc whose capabilities satisfy pred.
//
// Description:
//
//	Every server configured for the document's extension is started
//	if needed, its capabilities are tested with pred (nil accepts all)
//	and the document is synchronized to it before it is returned.
//	Servers that fail to start or sync are logged and skipped, so the
//	result may be empty. The order follows server names.
//
// Outputs:
//
//	[]*Server - Ready servers, synchronized to doc
//	error - ctx.Err() on cancellation, ErrManagerStopped after ShutdownAll
//
// Thread Safety:
//
//	Safe for concurrent use.
func (m *Manager) Servers(ctx context.Context, doc *text.Document, pred func(*ServerCapabilities) bool) ([]*Server, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if m.isStopped() {
		return nil, ErrManagerStopped
	}

	var out []*Server
	for _, config := range m.configs.ForExtension(extensionOf(doc.URI())) {
		server, err := m.GetOrSpawn(ctx, config.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Skipping language server",
				slog.String("server", config.Name),
				slog.String("uri", doc.URI()),
				slog.String("error", err.Error()),
			)
			continue
		}

		caps := server.Capabilities()
		if pred != nil && !pred(&caps) {
			continue
		}

		if err := server.SyncDocument(doc.URI(), doc.Version(), doc.Text()); err != nil {
			slog.Warn("Failed to synchronize document",
				slog.String("server", config.Name),
				slog.String("uri", doc.URI()),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, server)
	}
	return out, nil
}

// CloseDocument sends didClose for uri to every running server.
func (m *Manager) CloseDocument(uri string) {
	m.serversMu.RLock()
	servers := make([]*Server, 0, len(m.servers))
	for _, srv := range m.servers {
		servers = append(servers, srv)
	}
	m.serversMu.RUnlock()

	for _, srv := range servers {
		if err := srv.CloseDocument(uri); err != nil {
			slog.Debug("didClose failed",
				slog.String("server", srv.Name()),
				slog.String("uri", uri),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RequestContext applies the configured request timeout to ctx.
func (m *Manager) RequestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.config.RequestTimeout)
}

// Shutdown shuts down the server registered under name. No-op if it is
// not running.
func (m *Manager) Shutdown(ctx context.Context, name string) error {
	m.serversMu.Lock()
	server, ok := m.servers[name]
	if ok {
		delete(m.servers, name)
	}
	m.serversMu.Unlock()

	if !ok {
		return nil
	}
	return server.Shutdown(ctx)
}

// ShutdownAll shuts down all servers and stops the manager. After this
// call GetOrSpawn and Servers return ErrManagerStopped.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.stopOnce.Do(func() {
		close(m.stopped)
	})

	m.serversMu.Lock()
	servers := m.servers
	m.servers = make(map[string]*Server)
	m.serversMu.Unlock()

	var lastErr error
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// IsAvailable reports whether the server under name is configured and,
// for stdio servers, installed. Does not start the server.
func (m *Manager) IsAvailable(name string) bool {
	config, ok := m.configs.Get(name)
	if !ok {
		return false
	}
	if config.transport() != TransportStdio {
		return true
	}
	_, err := exec.LookPath(config.Command)
	return err == nil
}

// RunningServers returns the names of ready servers, sorted.
func (m *Manager) RunningServers() []string {
	m.serversMu.RLock()
	defer m.serversMu.RUnlock()

	names := make([]string, 0, len(m.servers))
	for name, srv := range m.servers {
		if srv.State() == ServerStateReady {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Config returns the manager configuration.
func (m *Manager) Config() ManagerConfig {
	return m.config
}

// RootPath returns the workspace root path.
func (m *Manager) RootPath() string {
	return m.rootPath
}

// Configs returns the server configuration registry.
func (m *Manager) Configs() *ConfigRegistry {
	return m.configs
}

func (m *Manager) isStopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}

// =============================================================================
// IDLE MONITOR
// =============================================================================

// StartIdleMonitor starts the idle server cleanup goroutine. The check
// interval is half the idle timeout. Does nothing if IdleTimeout is 0.
func (m *Manager) StartIdleMonitor() {
	if m.config.IdleTimeout <= 0 {
		return
	}

	go func() {
		interval := m.config.IdleTimeout / 2
		if interval < time.Second {
			interval = time.Second
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopped:
				return
			case <-ticker.C:
				m.shutdownIdle()
			}
		}
	}()
}

// shutdownIdle shuts down servers that have been idle too long.
func (m *Manager) shutdownIdle() {
	m.serversMu.RLock()
	var idle []string
	for name, srv := range m.servers {
		if srv.State() == ServerStateReady && time.Since(srv.LastUsed()) > m.config.IdleTimeout {
			idle = append(idle, name)
		}
	}
	m.serversMu.RUnlock()

	for _, name := range idle {
		slog.Info("Shutting down idle LSP server",
			slog.String("server", name),
			slog.Duration("idle_timeout", m.config.IdleTimeout),
		)
		_ = m.Shutdown(context.Background(), name)
	}
}

// extensionOf returns the file extension of a document URI.
func extensionOf(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		return path.Ext(u.Path)
	}
	return path.Ext(uri)
}
