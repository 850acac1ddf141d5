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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/lsp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	handlers := NewHandlers(svc)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	w := doJSON(t, router, "GET", "/v1/mpls/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	if resp.Version != ServiceVersion {
		t.Errorf("expected version %q, got %q", ServiceVersion, resp.Version)
	}
	if w.Header().Get("X-Request-ID") != "" {
		t.Error("health should not assign a request ID")
	}
}

func TestHandlers_HandleReady(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	w := doJSON(t, router, "GET", "/v1/mpls/ready", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Ready {
		t.Error("expected Ready=true")
	}
	if resp.Documents != 4 {
		t.Errorf("expected 4 documents, got %d", resp.Documents)
	}
	if resp.Servers == nil {
		t.Error("expected an empty server list, got null")
	}
}

func TestHandlers_HandleDiagnostics(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))
	uri := fixtureURI(t, "Fields.java")

	t.Run("selected document", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/v1/mpls/diagnostics", DiagnosticsRequest{URIs: []string{uri}})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		var resp DiagnosticsResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if len(resp.Diagnostics) != 1 || len(resp.Diagnostics[uri]) != 5 {
			t.Errorf("expected 5 diagnostics for %s, got %v", uri, resp.Diagnostics)
		}
		if resp.Diagnostics[uri][0].Source != diagnostics.Source {
			t.Errorf("expected source %q, got %q", diagnostics.Source, resp.Diagnostics[uri][0].Source)
		}
	})

	t.Run("plaintext", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/v1/mpls/diagnostics", DiagnosticsRequest{URIs: []string{uri}, DocumentFormat: "plaintext"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if strings.Contains(w.Body.String(), "`") {
			t.Errorf("plaintext messages contain backticks: %s", w.Body.String())
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/v1/mpls/diagnostics", DiagnosticsRequest{URIs: []string{"file:///missing/A.java"}})
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Code != "DOCUMENT_NOT_FOUND" {
			t.Errorf("expected code DOCUMENT_NOT_FOUND, got %q", resp.Code)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/v1/mpls/diagnostics", DiagnosticsRequest{DocumentFormat: "html"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		if !strings.Contains(w.Body.String(), "INVALID_FORMAT") {
			t.Errorf("expected INVALID_FORMAT, got %s", w.Body.String())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/v1/mpls/diagnostics", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestHandlers_HandleCodeAction(t *testing.T) {
	svc := newTestService(t, nil)
	router := setupTestRouter(svc)
	uri := fixtureURI(t, "MyService.java")

	w := doJSON(t, router, "POST", "/v1/mpls/diagnostics", DiagnosticsRequest{URIs: []string{uri}})
	var diags DiagnosticsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &diags); err != nil {
		t.Fatalf("failed to unmarshal diagnostics: %v", err)
	}
	if len(diags.Diagnostics[uri]) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", diags.Diagnostics[uri])
	}

	w = doJSON(t, router, "POST", "/v1/mpls/codeaction", CodeActionRequest{
		URI:        uri,
		Diagnostic: diags.Diagnostics[uri][0],
		Preview:    true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var resp CodeActionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Title != "Insert @RegisterRestClient" {
		t.Fatalf("unexpected actions %+v", resp.Actions)
	}
	if len(resp.Diffs) != 1 || !strings.Contains(resp.Diffs[0], "+@RegisterRestClient") {
		t.Errorf("unexpected diffs %q", resp.Diffs)
	}

	w = doJSON(t, router, "POST", "/v1/mpls/codeaction", map[string]any{"diagnostic": diags.Diagnostics[uri][0]})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing uri: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandlers_HandleCodeLensAndExecute(t *testing.T) {
	runner := &stubServer{
		name:   "runner",
		caps:   lsp.ServerCapabilities{CodeLensProvider: &lsp.CodeLensOptions{}},
		lenses: []lsp.CodeLens{lens(6, 0, "Run", "runner.run")},
	}
	router := setupTestRouter(newTestService(t, stubRegistry{runner}))

	w := doJSON(t, router, "POST", "/v1/mpls/codelens", CodeLensRequest{URI: fixtureURI(t, "Fields.java")})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var resp CodeLensResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Inlays) != 1 || len(resp.Inlays[0].Labels) != 1 {
		t.Fatalf("unexpected inlays %+v", resp.Inlays)
	}
	id := resp.Inlays[0].Labels[0].ID

	w = doJSON(t, router, "POST", "/v1/mpls/codelens/execute", ExecuteRequest{ID: id})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if cmds := runner.commands(); len(cmds) != 1 || cmds[0].Command != "runner.run" {
		t.Errorf("unexpected commands %+v", cmds)
	}

	w = doJSON(t, router, "POST", "/v1/mpls/codelens/execute", ExecuteRequest{ID: "stale"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlers_HandleOpen(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	body := OpenRequest{URI: "file:///virtual/A.java", Text: "package a;\n\nclass A {}\n"}
	req, _ := http.NewRequest("POST", "/v1/mpls/documents", bytes.NewReader(mustJSON(t, body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected request ID to be echoed, got %q", got)
	}
	var resp OpenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Version != 1 {
		t.Errorf("expected version 1, got %d", resp.Version)
	}

	w = doJSON(t, router, "POST", "/v1/mpls/documents", OpenRequest{URI: "ftp://host/A.java", Text: "class A {}"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "INVALID_URI") {
		t.Errorf("expected 400 INVALID_URI, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request ID")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
