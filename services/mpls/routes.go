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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the /v1/mpls/* endpoints with the router group.
//
// Description:
//
//	The router group should already have any required middleware
//	applied. /metrics is registered by the binary, not here.
//
// Endpoints:
//
//	POST /v1/mpls/documents - Load or replace a document
//	POST /v1/mpls/diagnostics - Check documents
//	POST /v1/mpls/codeaction - Quick fixes for one diagnostic
//	POST /v1/mpls/codelens - Collect and render code lenses
//	POST /v1/mpls/codelens/execute - Click a rendered label
//	GET  /v1/mpls/health - Health check
//	GET  /v1/mpls/ready - Readiness check
//
// Example:
//
//	handlers := mpls.NewHandlers(svc)
//	v1 := router.Group("/v1")
//	mpls.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	group := rg.Group("/mpls")
	{
		group.POST("/documents", handlers.HandleOpen)

		group.POST("/diagnostics", handlers.HandleDiagnostics)
		group.POST("/codeaction", handlers.HandleCodeAction)

		group.POST("/codelens", handlers.HandleCodeLens)
		group.POST("/codelens/execute", handlers.HandleExecute)

		group.GET("/health", handlers.HandleHealth)
		group.GET("/ready", handlers.HandleReady)
	}
}
