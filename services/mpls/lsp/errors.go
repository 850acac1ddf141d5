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
	"errors"
	"fmt"
)

// Sentinel errors for LSP operations.
var (
	// ErrServerNotRunning indicates the LSP server is not in a ready state.
	ErrServerNotRunning = errors.New("lsp server not running")

	// ErrServerNotInstalled indicates the LSP server binary was not found.
	ErrServerNotInstalled = errors.New("lsp server not installed")

	// ErrUnknownServer indicates no configuration exists under the name.
	ErrUnknownServer = errors.New("no lsp configuration for server")

	// ErrInitializeFailed indicates the LSP initialize handshake failed.
	ErrInitializeFailed = errors.New("lsp initialize failed")

	// ErrRequestTimeout indicates the LSP request exceeded the timeout.
	ErrRequestTimeout = errors.New("lsp request timeout")

	// ErrServerCrashed indicates the connection to the server ended unexpectedly.
	ErrServerCrashed = errors.New("lsp server crashed")

	// ErrInvalidResponse indicates the LSP response could not be parsed.
	ErrInvalidResponse = errors.New("invalid lsp response")

	// ErrServerAlreadyStarted indicates Start was called on an already running server.
	ErrServerAlreadyStarted = errors.New("server already started")

	// ErrManagerStopped indicates ShutdownAll has been called.
	ErrManagerStopped = errors.New("lsp manager stopped")
)

// JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeConnectionClosed     = -32099
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
)

// LSPError represents an error returned by the language server via JSON-RPC.
type LSPError struct {
	// Code is the JSON-RPC error code.
	Code int

	// Message is the error message from the server.
	Message string

	// Data contains optional additional data about the error.
	Data interface{}
}

// Error implements the error interface.
func (e *LSPError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound returns true if the method is not supported by the server.
func (e *LSPError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// IsRequestCancelled returns true if the request was cancelled.
func (e *LSPError) IsRequestCancelled() bool {
	return e.Code == CodeRequestCancelled
}

// IsConnectionClosed returns true if the request was failed locally
// because the connection went away.
func (e *LSPError) IsConnectionClosed() bool {
	return e.Code == CodeConnectionClosed
}
