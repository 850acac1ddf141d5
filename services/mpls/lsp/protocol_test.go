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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStream collects written messages and serves queued reads.
type recordingStream struct {
	reads   chan []byte
	written chan []byte
}

func newRecordingStream() *recordingStream {
	return &recordingStream{reads: make(chan []byte, 16), written: make(chan []byte, 16)}
}

func (s *recordingStream) Read() ([]byte, error) {
	data, ok := <-s.reads
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (s *recordingStream) Write(data []byte) error {
	s.written <- append([]byte(nil), data...)
	return nil
}

func (s *recordingStream) Close() error { return nil }

func (s *recordingStream) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case data := <-s.written:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for written message")
		return nil
	}
}

func TestHeaderStream_Write(t *testing.T) {
	var buf bytes.Buffer
	s := NewHeaderStream(nil, &buf, nil)

	require.NoError(t, s.Write([]byte(`{"jsonrpc":"2.0"}`)))
	assert.Equal(t, "Content-Length: 17\r\n\r\n{\"jsonrpc\":\"2.0\"}", buf.String())
}

func TestHeaderStream_Read(t *testing.T) {
	msg := `{"jsonrpc":"2.0","id":1,"result":null}`

	t.Run("reads valid message", func(t *testing.T) {
		s := NewHeaderStream(strings.NewReader(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(msg), msg)), nil, nil)
		body, err := s.Read()
		require.NoError(t, err)
		assert.Equal(t, msg, string(body))
	})

	t.Run("handles extra headers and case", func(t *testing.T) {
		input := fmt.Sprintf("content-length: %d\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n%s", len(msg), msg)
		body, err := NewHeaderStream(strings.NewReader(input), nil, nil).Read()
		require.NoError(t, err)
		assert.Equal(t, msg, string(body))
	})

	t.Run("reads consecutive messages", func(t *testing.T) {
		frame := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(msg), msg)
		s := NewHeaderStream(strings.NewReader(frame+frame), nil, nil)
		for i := 0; i < 2; i++ {
			body, err := s.Read()
			require.NoError(t, err)
			assert.Equal(t, msg, string(body))
		}
		_, err := s.Read()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("missing Content-Length", func(t *testing.T) {
		_, err := NewHeaderStream(strings.NewReader("\r\n{}"), nil, nil).Read()
		assert.Error(t, err)
	})

	t.Run("invalid Content-Length", func(t *testing.T) {
		_, err := NewHeaderStream(strings.NewReader("Content-Length: abc\r\n\r\n{}"), nil, nil).Read()
		assert.Error(t, err)
	})

	t.Run("truncated body", func(t *testing.T) {
		_, err := NewHeaderStream(strings.NewReader("Content-Length: 10\r\n\r\n{}"), nil, nil).Read()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestProtocol_SendRequest(t *testing.T) {
	t.Run("correlates response", func(t *testing.T) {
		stream := newRecordingStream()
		p := NewProtocol(stream)
		go func() { _ = p.ReadLoop(context.Background()) }()
		defer close(stream.reads)

		type result struct {
			resp *Response
			err  error
		}
		done := make(chan result, 1)
		go func() {
			resp, err := p.SendRequest(context.Background(), "textDocument/codeLens", map[string]string{"k": "v"})
			done <- result{resp, err}
		}()

		req := stream.next(t)
		assert.Equal(t, "textDocument/codeLens", req["method"])
		assert.Equal(t, "2.0", req["jsonrpc"])
		stream.reads <- []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%v,"result":[1]}`, req["id"]))

		r := <-done
		require.NoError(t, r.err)
		assert.JSONEq(t, `[1]`, string(r.resp.Result))
	})

	t.Run("server error becomes LSPError", func(t *testing.T) {
		stream := newRecordingStream()
		p := NewProtocol(stream)
		go func() { _ = p.ReadLoop(context.Background()) }()
		defer close(stream.reads)

		done := make(chan error, 1)
		go func() {
			_, err := p.SendRequest(context.Background(), "x", nil)
			done <- err
		}()
		req := stream.next(t)
		stream.reads <- []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%v,"error":{"code":-32601,"message":"nope"}}`, req["id"]))

		err := <-done
		var lspErr *LSPError
		require.True(t, errors.As(err, &lspErr))
		assert.True(t, lspErr.IsMethodNotFound())
	})

	t.Run("cancellation sends cancelRequest", func(t *testing.T) {
		stream := newRecordingStream()
		p := NewProtocol(stream)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := p.SendRequest(ctx, "slow", nil)
			done <- err
		}()
		req := stream.next(t)
		cancel()

		assert.ErrorIs(t, <-done, context.Canceled)
		notif := stream.next(t)
		assert.Equal(t, "$/cancelRequest", notif["method"])
		assert.Equal(t, req["id"], notif["params"].(map[string]interface{})["id"])
	})

	t.Run("deadline is a timeout", func(t *testing.T) {
		p := NewProtocol(newRecordingStream())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := p.SendRequest(ctx, "slow", nil)
		assert.ErrorIs(t, err, ErrRequestTimeout)
	})

	t.Run("nil context", func(t *testing.T) {
		p := NewProtocol(newRecordingStream())
		_, err := p.SendRequest(nil, "x", nil) //nolint:staticcheck
		assert.Error(t, err)
	})

	t.Run("closed protocol", func(t *testing.T) {
		p := NewProtocol(newRecordingStream())
		p.Close()
		_, err := p.SendRequest(context.Background(), "x", nil)
		assert.ErrorIs(t, err, ErrServerNotRunning)
		assert.ErrorIs(t, p.SendNotification("x", nil), ErrServerNotRunning)
	})
}

func TestProtocol_Close_FailsPending(t *testing.T) {
	stream := newRecordingStream()
	p := NewProtocol(stream)

	done := make(chan error, 1)
	go func() {
		_, err := p.SendRequest(context.Background(), "x", nil)
		done <- err
	}()
	stream.next(t)
	p.Close()

	var lspErr *LSPError
	require.True(t, errors.As(<-done, &lspErr))
	assert.True(t, lspErr.IsConnectionClosed())
}

func TestProtocol_ReadLoop_EOF(t *testing.T) {
	stream := newRecordingStream()
	close(stream.reads)
	err := NewProtocol(stream).ReadLoop(context.Background())
	assert.ErrorIs(t, err, ErrServerCrashed)
}

func TestProtocol_HandleMessage(t *testing.T) {
	t.Run("forwards notifications", func(t *testing.T) {
		p := NewProtocol(newRecordingStream())
		var got string
		p.OnNotification(func(method string, params json.RawMessage) { got = method })
		p.handleMessage([]byte(`{"jsonrpc":"2.0","method":"window/logMessage","params":{"type":3,"message":"hi"}}`))
		assert.Equal(t, "window/logMessage", got)
	})

	t.Run("ignores unknown response id", func(t *testing.T) {
		p := NewProtocol(newRecordingStream())
		p.handleMessage([]byte(`{"jsonrpc":"2.0","id":999,"result":"test"}`))
	})

	t.Run("ignores malformed json", func(t *testing.T) {
		p := NewProtocol(newRecordingStream())
		p.handleMessage([]byte(`{not json`))
	})

	t.Run("answers server requests", func(t *testing.T) {
		tests := []struct {
			msg    string
			result interface{}
			code   float64
		}{
			{msg: `{"jsonrpc":"2.0","id":"a","method":"client/registerCapability","params":{}}`},
			{msg: `{"jsonrpc":"2.0","id":7,"method":"workspace/configuration","params":{"items":[{},{}]}}`, result: []interface{}{nil, nil}},
			{msg: `{"jsonrpc":"2.0","id":8,"method":"workspace/applyEdit","params":{}}`, code: CodeMethodNotFound},
		}
		for _, tt := range tests {
			stream := newRecordingStream()
			p := NewProtocol(stream)
			p.handleMessage([]byte(tt.msg))

			reply := stream.next(t)
			var in incoming
			require.NoError(t, json.Unmarshal([]byte(tt.msg), &in))
			var id interface{}
			require.NoError(t, json.Unmarshal(in.ID, &id))
			assert.Equal(t, id, reply["id"])
			if tt.code != 0 {
				assert.Equal(t, tt.code, reply["error"].(map[string]interface{})["code"])
				continue
			}
			assert.Equal(t, tt.result, reply["result"])
			assert.Nil(t, reply["error"])
		}
	})
}
