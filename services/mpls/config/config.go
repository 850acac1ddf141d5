// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the mpls configuration file model.
//
// A configuration file is YAML or TOML, chosen by extension. Fields not
// present in the file keep their DefaultConfig value. Durations are Go
// duration strings ("25ms", "10m").
package config

import (
	"time"

	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/lsp"
)

// =============================================================================
// Configuration Model
// =============================================================================

// Config is the root of the configuration file.
type Config struct {
	Workspace   WorkspaceConfig   `yaml:"workspace" toml:"workspace"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" toml:"telemetry"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" toml:"diagnostics"`
	CodeLens    CodeLensConfig    `yaml:"codelens" toml:"codelens"`
	LSP         LSPConfig         `yaml:"lsp" toml:"lsp"`
}

// WorkspaceConfig selects the Java sources that are analyzed.
type WorkspaceConfig struct {
	// Root is the workspace directory. Relative paths resolve against the
	// current directory.
	Root string `yaml:"root" toml:"root" validate:"required"`

	// Exclude holds glob patterns matched against slash-separated paths
	// relative to Root, and against each directory name.
	Exclude []string `yaml:"exclude" toml:"exclude" validate:"dive,required,glob"`

	// MaxFileSize is the largest Java file parsed, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" toml:"max_file_size" validate:"gt=0"`

	// Watch reloads changed files while serving.
	Watch bool `yaml:"watch" toml:"watch"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr" validate:"required,hostname_port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json" toml:"json"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir" toml:"dir"`
}

// TelemetryConfig configures traces and metrics.
type TelemetryConfig struct {
	// TraceExporter is "none", "stdout" or "otlp".
	TraceExporter string `yaml:"trace_exporter" toml:"trace_exporter" validate:"oneof=none stdout otlp"`

	// MetricExporter is "none", "prometheus" or "stdout". Prometheus
	// metrics are served on /metrics.
	MetricExporter string `yaml:"metric_exporter" toml:"metric_exporter" validate:"oneof=none prometheus stdout"`

	// OTLPEndpoint is the OTLP gRPC receiver for the "otlp" exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint" validate:"omitempty,hostname_port"`

	// OTLPInsecure disables TLS towards OTLPEndpoint.
	OTLPInsecure bool `yaml:"otlp_insecure" toml:"otlp_insecure"`
}

// DiagnosticsConfig configures diagnostic messages.
type DiagnosticsConfig struct {
	DocumentFormat string `yaml:"document_format" toml:"document_format" validate:"oneof=markdown plaintext"`
}

// CodeLensConfig configures code lens aggregation.
type CodeLensConfig struct {
	// PollInterval is how long the drain loop waits for one result. It
	// bounds how late a cancellation is noticed.
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval" validate:"gt=0,lt=50ms"`
}

// LSPConfig configures the language server manager.
type LSPConfig struct {
	IdleTimeout    time.Duration `yaml:"idle_timeout" toml:"idle_timeout" validate:"gte=0"`
	StartupTimeout time.Duration `yaml:"startup_timeout" toml:"startup_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout" validate:"gte=0"`

	Servers []LanguageServerConfig `yaml:"servers" toml:"servers" validate:"dive"`
}

// LanguageServerConfig describes one language server.
type LanguageServerConfig struct {
	Name       string   `yaml:"name" toml:"name" validate:"required"`
	Language   string   `yaml:"language" toml:"language" validate:"required"`
	Transport  string   `yaml:"transport" toml:"transport" validate:"omitempty,oneof=stdio tcp websocket"`
	Command    string   `yaml:"command,omitempty" toml:"command"`
	Args       []string `yaml:"args,omitempty" toml:"args"`
	Address    string   `yaml:"address,omitempty" toml:"address"`
	URL        string   `yaml:"url,omitempty" toml:"url"`
	Extensions []string `yaml:"extensions" toml:"extensions" validate:"min=1,dive,fileext"`
}

// DefaultConfig returns the built-in configuration: the current directory
// as workspace, jdtls over stdio for .java files, a 25ms poll interval and
// the LSP manager defaults.
func DefaultConfig() Config {
	mgr := lsp.DefaultManagerConfig()
	return Config{
		Workspace: WorkspaceConfig{
			Root:        ".",
			Exclude:     []string{".git", "target", "build", "node_modules"},
			MaxFileSize: 1 << 20,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7450",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
		Diagnostics: DiagnosticsConfig{
			DocumentFormat: string(diagnostics.FormatMarkdown),
		},
		CodeLens: CodeLensConfig{
			PollInterval: 25 * time.Millisecond,
		},
		LSP: LSPConfig{
			IdleTimeout:    mgr.IdleTimeout,
			StartupTimeout: mgr.StartupTimeout,
			RequestTimeout: mgr.RequestTimeout,
			Servers: []LanguageServerConfig{{
				Name:       "jdtls",
				Language:   "java",
				Transport:  string(lsp.TransportStdio),
				Command:    "jdtls",
				Extensions: []string{".java"},
			}},
		},
	}
}

// =============================================================================
// Conversions
// =============================================================================

// ManagerConfig returns the LSP manager settings.
func (c *Config) ManagerConfig() lsp.ManagerConfig {
	return lsp.ManagerConfig{
		IdleTimeout:    c.LSP.IdleTimeout,
		StartupTimeout: c.LSP.StartupTimeout,
		RequestTimeout: c.LSP.RequestTimeout,
	}
}

// Registry builds the language server registry from LSP.Servers.
func (c *Config) Registry() *lsp.ConfigRegistry {
	reg := lsp.NewEmptyConfigRegistry()
	for _, s := range c.LSP.Servers {
		reg.Register(lsp.ServerConfig{
			Name:       s.Name,
			Language:   s.Language,
			Transport:  lsp.Transport(s.Transport),
			Command:    s.Command,
			Args:       append([]string(nil), s.Args...),
			Address:    s.Address,
			URL:        s.URL,
			Extensions: append([]string(nil), s.Extensions...),
		})
	}
	return reg
}

// DocumentFormat returns the diagnostic message format.
func (c *Config) DocumentFormat() diagnostics.DocumentFormat {
	return diagnostics.ParseDocumentFormat(c.Diagnostics.DocumentFormat)
}
