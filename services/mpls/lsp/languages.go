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
	"sort"
	"sync"
)

// Transport names the way a server is reached.
type Transport string

const (
	// TransportStdio spawns Command and talks over its stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportTCP dials Address and uses header framing.
	TransportTCP Transport = "tcp"

	// TransportWebSocket dials URL and sends one message per frame.
	TransportWebSocket Transport = "websocket"
)

// ServerConfig describes one language server.
type ServerConfig struct {
	// Name uniquely identifies the server (e.g., "jdtls").
	Name string

	// Language is the LSP language identifier sent on didOpen.
	Language string

	// Transport selects how the server is reached; stdio when empty.
	Transport Transport

	// Command is the executable name or path for stdio servers.
	Command string

	// Args are command-line arguments to pass to the server.
	Args []string

	// Address is host:port for TCP servers.
	Address string

	// URL is the ws:// or wss:// endpoint for WebSocket servers.
	URL string

	// Extensions are file extensions this server handles (e.g., ".java").
	Extensions []string

	// InitializationOptions are custom options passed during initialize.
	InitializationOptions interface{}
}

// transport returns the effective transport.
func (c ServerConfig) transport() Transport {
	if c.Transport == "" {
		return TransportStdio
	}
	return c.Transport
}

// ConfigRegistry holds the configured language servers.
//
// Several servers may handle the same extension; all of them are asked
// for code lenses.
//
// Thread Safety: Safe for concurrent use.
type ConfigRegistry struct {
	mu     sync.RWMutex
	byName map[string]ServerConfig
}

// NewConfigRegistry creates a registry with the default Java server.
func NewConfigRegistry() *ConfigRegistry {
	r := NewEmptyConfigRegistry()
	r.Register(ServerConfig{
		Name:       "jdtls",
		Language:   "java",
		Command:    "jdtls",
		Extensions: []string{".java"},
	})
	return r
}

// NewEmptyConfigRegistry creates a registry with no servers.
func NewEmptyConfigRegistry() *ConfigRegistry {
	return &ConfigRegistry{byName: make(map[string]ServerConfig)}
}

// Register adds or replaces the configuration with the same name.
func (r *ConfigRegistry) Register(config ServerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[config.Name] = config
}

// Get returns the configuration registered under name.
func (r *ConfigRegistry) Get(name string) (ServerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.byName[name]
	return config, ok
}

// ForExtension returns every configuration handling ext, ordered by name.
func (r *ConfigRegistry) ForExtension(ext string) []ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ServerConfig
	for _, config := range r.byName {
		for _, e := range config.Extensions {
			if e == ext {
				out = append(out, config)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all registered server names, sorted.
func (r *ConfigRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
