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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/mpls/services/mpls/codelens"
	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/javasrc"
	"github.com/AleutianAI/mpls/services/mpls/quickfix"
)

// Handlers serves the mpls HTTP API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers over svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleOpen handles POST /v1/mpls/documents.
//
// Description:
//
//	Loads a document from disk, or stores the given text as its current
//	content.
//
// Response:
//
//	200 OK: OpenResponse
//	400 Bad Request: Invalid body or URI, unparsable content
func (h *Handlers) HandleOpen(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleOpen")

	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	doc, err := h.svc.Open(c.Request.Context(), req.URI, req.Text)
	if err != nil {
		logger.Warn("Open failed", "uri", req.URI, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, OpenResponse{URI: doc.URI(), Version: doc.Version()})
}

// HandleDiagnostics handles POST /v1/mpls/diagnostics.
//
// Response:
//
//	200 OK: DiagnosticsResponse
//	400 Bad Request: Invalid body or document format
//	404 Not Found: A URI is not in the workspace
func (h *Handlers) HandleDiagnostics(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDiagnostics")

	var req DiagnosticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	var format diagnostics.DocumentFormat
	switch req.DocumentFormat {
	case "":
	case string(diagnostics.FormatMarkdown), string(diagnostics.FormatPlainText):
		format = diagnostics.DocumentFormat(req.DocumentFormat)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "document_format must be markdown or plaintext", Code: "INVALID_FORMAT"})
		return
	}

	result, err := h.svc.Diagnostics(c.Request.Context(), req.URIs, format)
	if err != nil {
		logger.Warn("Diagnostics failed", "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DiagnosticsResponse{Diagnostics: result})
}

// HandleCodeAction handles POST /v1/mpls/codeaction.
//
// Response:
//
//	200 OK: CodeActionResponse, empty when the diagnostic has no fix
//	404 Not Found: URI not in the workspace
//	422 Unprocessable Entity: No declaration at the diagnostic
func (h *Handlers) HandleCodeAction(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCodeAction")

	var req CodeActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	resp, err := h.svc.CodeActions(c.Request.Context(), req)
	if err != nil {
		logger.Warn("Code action failed", "uri", req.URI, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCodeLens handles POST /v1/mpls/codelens.
//
// Response:
//
//	200 OK: CodeLensResponse
//	404 Not Found: URI not in the workspace
func (h *Handlers) HandleCodeLens(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCodeLens")

	var req CodeLensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	resp, err := h.svc.CodeLenses(c.Request.Context(), req.URI)
	if err != nil {
		logger.Warn("Code lens collection failed", "uri", req.URI, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleExecute handles POST /v1/mpls/codelens/execute.
//
// Response:
//
//	200 OK: ExecuteResponse
//	404 Not Found: Unknown label ID
//	422 Unprocessable Entity: The lens has no command
//	502 Bad Gateway: The language server failed the command
func (h *Handlers) HandleExecute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExecute")

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	if err := h.svc.ExecuteLens(c.Request.Context(), req.ID); err != nil {
		logger.Warn("Code lens command failed", "id", req.ID, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExecuteResponse{Executed: true})
}

// HandleHealth handles GET /v1/mpls/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// HandleReady handles GET /v1/mpls/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Ready())
}

// writeError maps a service error to a status code and error code.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		status, code = http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, ErrLensNotFound):
		status, code = http.StatusNotFound, "LENS_NOT_FOUND"
	case errors.Is(err, ErrInvalidURI):
		status, code = http.StatusBadRequest, "INVALID_URI"
	case errors.Is(err, javasrc.ErrInvalidContent), errors.Is(err, javasrc.ErrFileTooLarge):
		status, code = http.StatusBadRequest, "INVALID_CONTENT"
	case errors.Is(err, quickfix.ErrDeclarationNotFound):
		status, code = http.StatusUnprocessableEntity, "DECLARATION_NOT_FOUND"
	case errors.Is(err, quickfix.ErrStaleEdit):
		status, code = http.StatusConflict, "STALE_EDIT"
	case errors.Is(err, codelens.ErrNoCommand):
		status, code = http.StatusUnprocessableEntity, "NO_COMMAND"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		status, code = http.StatusServiceUnavailable, "CANCELLED"
	case errors.Is(err, ErrCommandFailed):
		status, code = http.StatusBadGateway, "COMMAND_FAILED"
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
