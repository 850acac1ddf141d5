// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp is the client side of the Language Server Protocol used to
// gather code lenses from external language servers.
//
// # Components
//
//   - Stream: message framing (Content-Length headers over stdio or TCP,
//     one frame per WebSocket text message)
//   - Protocol: JSON-RPC request/response correlation over a Stream
//   - Server: one language server connection and its lifecycle
//   - Manager: lazy startup of every configured server and the
//     capability-filtered registry query used by the code lens aggregator
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
//
// # Example
//
//	mgr := lsp.NewManager("/path/to/project", lsp.DefaultManagerConfig())
//	defer mgr.ShutdownAll(context.Background())
//
//	servers, err := mgr.Servers(ctx, doc, func(c *lsp.ServerCapabilities) bool {
//		return c.HasCodeLensProvider()
//	})
package lsp
