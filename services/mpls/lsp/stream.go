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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Stream carries whole JSON-RPC messages to and from a language server.
//
// Thread Safety:
//
//	Read must be called from a single goroutine. Write is safe for
//	concurrent use.
type Stream interface {
	// Read returns the next message body.
	Read() ([]byte, error)

	// Write sends one message body.
	Write(data []byte) error

	// Close releases the underlying connection.
	Close() error
}

// =============================================================================
// HEADER FRAMING
// =============================================================================

// headerStream frames messages with Content-Length headers, as used over
// stdio and raw TCP.
type headerStream struct {
	reader  *bufio.Reader
	writer  io.Writer
	closer  io.Closer
	writeMu sync.Mutex
}

// NewHeaderStream frames messages over r and w with Content-Length headers.
//
// Inputs:
//
//	r - Reader for server output; nil for a write-only stream
//	w - Writer for server input; nil for a read-only stream
//	closer - Closed by Close; may be nil
func NewHeaderStream(r io.Reader, w io.Writer, closer io.Closer) Stream {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReader(r)
	}
	return &headerStream{reader: reader, writer: w, closer: closer}
}

// Read reads a single message.
func (s *headerStream) Read() ([]byte, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("no reader configured")
	}
	contentLength := -1

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		value = strings.TrimSpace(value)
		contentLength, err = strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid Content-Length value %q: %w", value, err)
		}
		if contentLength < 0 {
			return nil, fmt.Errorf("negative Content-Length: %d", contentLength)
		}
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("missing or zero Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Write writes a single message with its header.
func (s *headerStream) Write(data []byte) error {
	if s.writer == nil {
		return fmt.Errorf("no writer configured")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(s.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Close closes the underlying connection, if any.
func (s *headerStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// =============================================================================
// WEBSOCKET FRAMING
// =============================================================================

// wsStream sends one JSON-RPC message per WebSocket text message.
type wsStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketStream wraps an established WebSocket connection.
func NewWebSocketStream(conn *websocket.Conn) Stream {
	return &wsStream{conn: conn}
}

// Read returns the next text or binary message.
func (s *wsStream) Read() ([]byte, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Write sends data as one text message.
func (s *wsStream) Write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection.
func (s *wsStream) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}
