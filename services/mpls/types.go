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
	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/quickfix"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// =============================================================================
// Documents
// =============================================================================

// OpenRequest is the request for POST /v1/mpls/documents.
type OpenRequest struct {
	// URI is the file URI of the document.
	URI string `json:"uri" binding:"required"`

	// Text replaces the stored content, e.g. unsaved editor content.
	Text string `json:"text"`
}

// OpenResponse is the response for POST /v1/mpls/documents.
type OpenResponse struct {
	URI     string `json:"uri"`
	Version int32  `json:"version"`
}

// =============================================================================
// Diagnostics
// =============================================================================

// DiagnosticsRequest is the request for POST /v1/mpls/diagnostics.
type DiagnosticsRequest struct {
	// URIs selects the documents; empty means every document.
	URIs []string `json:"uris"`

	// DocumentFormat is "markdown" or "plaintext"; empty uses the
	// configured format.
	DocumentFormat string `json:"document_format"`
}

// DiagnosticsResponse is the response for POST /v1/mpls/diagnostics.
type DiagnosticsResponse struct {
	// Diagnostics maps each requested URI to its findings ordered by
	// position. A document whose check failed maps to an empty list.
	Diagnostics map[string][]diagnostics.Diagnostic `json:"diagnostics"`
}

// =============================================================================
// Code Actions
// =============================================================================

// CodeActionRequest is the request for POST /v1/mpls/codeaction.
type CodeActionRequest struct {
	URI        string                 `json:"uri" binding:"required"`
	Diagnostic diagnostics.Diagnostic `json:"diagnostic"`

	// WholeDocument returns each action as one edit replacing the
	// whole document.
	WholeDocument bool `json:"whole_document"`

	// Preview adds a unified diff per action.
	Preview bool `json:"preview"`
}

// CodeActionResponse is the response for POST /v1/mpls/codeaction.
type CodeActionResponse struct {
	Actions []quickfix.CodeAction `json:"actions"`

	// Diffs holds one unified diff per action when Preview was set.
	Diffs []string `json:"diffs,omitempty"`
}

// =============================================================================
// Code Lenses
// =============================================================================

// CodeLensRequest is the request for POST /v1/mpls/codelens.
type CodeLensRequest struct {
	URI string `json:"uri" binding:"required"`
}

// CodeLensResponse is the response for POST /v1/mpls/codelens.
type CodeLensResponse struct {
	URI     string      `json:"uri"`
	Version int32       `json:"version"`
	Inlays  []InlayView `json:"inlays"`
}

// InlayView is the wire form of one rendered inlay.
type InlayView struct {
	Offset   int           `json:"offset"`
	Position text.Position `json:"position"`

	// Indent is the width of the leading spacer in columns.
	Indent int         `json:"indent"`
	Labels []LabelView `json:"labels"`
}

// LabelView is one clickable label.
type LabelView struct {
	// ID is passed to POST /v1/mpls/codelens/execute.
	ID     string `json:"id"`
	Title  string `json:"title"`
	Server string `json:"server"`
}

// ExecuteRequest is the request for POST /v1/mpls/codelens/execute.
type ExecuteRequest struct {
	ID string `json:"id" binding:"required"`
}

// ExecuteResponse is the response for POST /v1/mpls/codelens/execute.
type ExecuteResponse struct {
	Executed bool `json:"executed"`
}

// =============================================================================
// Health
// =============================================================================

// HealthResponse is the response for GET /v1/mpls/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/mpls/ready.
type ReadyResponse struct {
	Ready     bool     `json:"ready"`
	Documents int      `json:"documents"`
	Servers   []string `json:"servers"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`
}
