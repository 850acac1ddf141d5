// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for the mpls binaries.
//
// Log records go to stderr (text or JSON) and, when a log directory is
// configured, to a daily JSON file as well:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "~/.mpls/logs",
//	    Service: "mpls",
//	})
//	defer logger.Close()
//	logger.SetDefault()
//
// Library packages log through log/slog directly; SetDefault routes those
// records through the configured handlers.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Level
// =============================================================================

// Level is a log severity.
type Level int

const (
	// LevelDebug is verbose output for troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is normal operational output.
	LevelInfo

	// LevelWarn is for recoverable problems.
	LevelWarn

	// LevelError is for failed operations.
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ErrUnknownLevel indicates a level name ParseLevel does not know.
var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel maps "debug", "info", "warn"/"warning" or "error" to a
// Level, ignoring case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// =============================================================================
// Logger
// =============================================================================

// Config configures a Logger.
type Config struct {
	// Level is the minimum level written.
	Level Level

	// LogDir enables file output as {Service}_{date}.log in JSON. A
	// leading ~ expands to the home directory.
	LogDir string

	// Service is attached to every record as "service".
	Service string

	// JSON selects JSON instead of text for the console output.
	JSON bool

	// Quiet disables the console output.
	Quiet bool

	// Output replaces stderr as the console output.
	Output io.Writer
}

// Logger writes records to the console and an optional file.
//
// Thread Safety: Safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	file *os.File
	path string

	mu sync.Mutex
}

// New creates a Logger. A log directory that cannot be created or opened
// is reported on the console and file output is skipped.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}
	logger := &Logger{}

	var handlers []slog.Handler
	if !config.Quiet {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	var fileErr error
	if config.LogDir != "" {
		fileErr = logger.openFile(config)
		if fileErr == nil {
			handlers = append(handlers, slog.NewJSONHandler(logger.file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}
	logger.slog = slog.New(handler)

	if fileErr != nil {
		logger.slog.Warn("file logging disabled", slog.String("error", fileErr.Error()))
	}
	return logger
}

func (l *Logger) openFile(config Config) error {
	dir := expandPath(config.LogDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	service := config.Service
	if service == "" {
		service = "mpls"
	}
	l.path = filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.file = file
	return nil
}

// Default creates an info-level stderr logger for the mpls service.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "mpls"})
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// SetDefault installs the logger as the slog default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.slog)
}

// FilePath returns the log file path, empty without file output.
func (l *Logger) FilePath() string {
	return l.path
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil
	if syncErr != nil {
		return fmt.Errorf("sync log file: %w", syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close log file: %w", closeErr)
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

// multiHandler fans records out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
