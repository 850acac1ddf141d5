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
	"encoding/json"
	"net"
	"sync"
	"testing"
)

// fakeServer is an in-memory language server speaking over a Stream.
type fakeServer struct {
	stream Stream
	caps   ServerCapabilities

	// handle answers requests other than initialize and shutdown.
	handle func(method string, params json.RawMessage) (interface{}, *ResponseError)

	mu            sync.Mutex
	notifications []string
	requests      []string
	done          chan struct{}
}

// startFakeServer serves on one end of a pipe and returns the other end.
func startFakeServer(t *testing.T, caps ServerCapabilities, handle func(string, json.RawMessage) (interface{}, *ResponseError)) (*fakeServer, Stream) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	f := &fakeServer{
		stream: NewHeaderStream(serverConn, serverConn, serverConn),
		caps:   caps,
		handle: handle,
		done:   make(chan struct{}),
	}
	go f.serve()
	t.Cleanup(func() {
		_ = f.stream.Close()
		<-f.done
	})
	return f, NewHeaderStream(clientConn, clientConn, clientConn)
}

func (f *fakeServer) serve() {
	defer close(f.done)
	for {
		data, err := f.stream.Read()
		if err != nil {
			return
		}
		var in incoming
		if err := json.Unmarshal(data, &in); err != nil {
			return
		}

		hasID := len(in.ID) > 0 && string(in.ID) != "null"
		if !hasID {
			f.mu.Lock()
			f.notifications = append(f.notifications, in.Method)
			f.mu.Unlock()
			if in.Method == "exit" {
				return
			}
			continue
		}

		f.mu.Lock()
		f.requests = append(f.requests, in.Method)
		f.mu.Unlock()

		reply := serverReply{JSONRPC: JSONRPCVersion, ID: in.ID}
		switch in.Method {
		case "initialize":
			reply.Result = InitializeResult{Capabilities: f.caps, ServerInfo: &ServerInfo{Name: "fake"}}
		case "shutdown":
		default:
			if f.handle == nil {
				reply.Error = &ResponseError{Code: CodeMethodNotFound, Message: in.Method}
			} else {
				reply.Result, reply.Error = f.handle(in.Method, in.Params)
			}
		}
		out, _ := json.Marshal(reply)
		if err := f.stream.Write(out); err != nil {
			return
		}
	}
}

func (f *fakeServer) seenNotifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notifications...)
}

func (f *fakeServer) seenRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}
