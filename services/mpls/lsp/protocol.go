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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Request represents a JSON-RPC request sent by the client.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Response represents a JSON-RPC response to a client request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError represents a JSON-RPC error.
type ResponseError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// incoming is any message read from the server. Server-initiated requests
// may carry string IDs, so the ID is kept raw until classified.
type incoming struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

// serverReply answers a server-initiated request.
type serverReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// NotificationHandler receives notifications sent by the server.
type NotificationHandler func(method string, params json.RawMessage)

// =============================================================================
// PROTOCOL HANDLER
// =============================================================================

// Protocol handles JSON-RPC communication over a Stream.
//
// Description:
//
//	Correlates responses with pending requests, forwards server
//	notifications to an optional handler, and answers the few
//	server-initiated requests a passive client must acknowledge.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple goroutines can send requests
//	and notifications simultaneously.
type Protocol struct {
	stream    Stream
	nextID    int64
	pending   map[int64]chan Response
	pendingMu sync.Mutex
	closed    int32 // atomic: 1 if closed
	onNotify  NotificationHandler
}

// NewProtocol creates a protocol handler over stream.
func NewProtocol(stream Stream) *Protocol {
	return &Protocol{
		stream:  stream,
		pending: make(map[int64]chan Response),
	}
}

// OnNotification sets the handler for server notifications.
// Must be called before ReadLoop starts.
func (p *Protocol) OnNotification(h NotificationHandler) {
	p.onNotify = h
}

// SendRequest sends a request and waits for the response.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	method - The LSP method to invoke (e.g., "textDocument/codeLens")
//	params - Method parameters (will be JSON-marshaled)
//
// Outputs:
//
//	*Response - The server's response
//	error - ErrRequestTimeout when ctx ends first, *LSPError when the
//	server answers with an error
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) SendRequest(ctx context.Context, method string, params interface{}) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if atomic.LoadInt32(&p.closed) == 1 {
		return nil, ErrServerNotRunning
	}

	id := atomic.AddInt64(&p.nextID, 1)

	respCh := make(chan Response, 1)
	p.pendingMu.Lock()
	p.pending[id] = respCh
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if err := p.write(Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			_ = p.SendNotification("$/cancelRequest", map[string]int64{"id": id})
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, ctx.Err())
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrServerNotRunning
		}
		if resp.Error != nil {
			return nil, &LSPError{
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
			}
		}
		return &resp, nil
	}
}

// SendNotification sends a notification (no response expected).
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) SendNotification(method string, params interface{}) error {
	if atomic.LoadInt32(&p.closed) == 1 {
		return ErrServerNotRunning
	}
	return p.write(Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params})
}

func (p *Protocol) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return p.stream.Write(data)
}

// ReadLoop reads messages from the server until the stream ends.
//
// Description:
//
//	Responses are matched to pending requests, notifications go to the
//	notification handler, server requests are answered. Call this in a
//	goroutine after connecting.
//
// Outputs:
//
//	error - ErrServerCrashed on an unexpected end of stream, nil after Close
//
// Thread Safety:
//
//	Must be called from a single goroutine.
func (p *Protocol) ReadLoop(ctx context.Context) error {
	defer p.failPending()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := p.stream.Read()
		if err != nil {
			if atomic.LoadInt32(&p.closed) == 1 {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrServerCrashed
			}
			return fmt.Errorf("read: %w", err)
		}
		p.handleMessage(msg)
	}
}

// handleMessage dispatches a received message.
func (p *Protocol) handleMessage(msg []byte) {
	var in incoming
	if err := json.Unmarshal(msg, &in); err != nil {
		slog.Debug("Dropping malformed LSP message", slog.String("error", err.Error()))
		return
	}

	hasID := len(in.ID) > 0 && string(in.ID) != "null"
	switch {
	case in.Method != "" && hasID:
		p.replyToServer(in)
	case in.Method != "":
		if p.onNotify != nil {
			p.onNotify(in.Method, in.Params)
		}
	case hasID:
		var id int64
		if err := json.Unmarshal(in.ID, &id); err != nil {
			return
		}
		p.pendingMu.Lock()
		ch, ok := p.pending[id]
		p.pendingMu.Unlock()
		if ok {
			select {
			case ch <- Response{JSONRPC: JSONRPCVersion, ID: id, Result: in.Result, Error: in.Error}:
			default:
			}
		}
	}
}

// replyToServer acknowledges server requests. Capability registration and
// progress creation succeed with a null result; configuration requests get
// one null per item; everything else is reported as unsupported.
func (p *Protocol) replyToServer(in incoming) {
	reply := serverReply{JSONRPC: JSONRPCVersion, ID: in.ID}
	switch in.Method {
	case "client/registerCapability", "client/unregisterCapability", "window/workDoneProgress/create":
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(in.Params, &params)
		reply.Result = make([]interface{}, len(params.Items))
	default:
		reply.Error = &ResponseError{Code: CodeMethodNotFound, Message: "method not supported: " + in.Method}
	}
	if err := p.write(reply); err != nil {
		slog.Debug("Failed to answer LSP server request",
			slog.String("method", in.Method),
			slog.String("error", err.Error()),
		)
	}
}

// failPending answers every in-flight request with a connection error.
func (p *Protocol) failPending() {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		select {
		case ch <- Response{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Error:   &ResponseError{Code: CodeConnectionClosed, Message: "server connection closed"},
		}:
		default:
		}
		delete(p.pending, id)
	}
}

// Close marks the protocol as closed and fails all pending requests.
// It does not close the stream.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) Close() {
	atomic.StoreInt32(&p.closed, 1)
	p.failPending()
}
