// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mpls checks MicroProfile Rest Client usage in Java sources.
//
// Usage:
//
//	mpls init                         # write mpls.yaml with the defaults
//	mpls diagnose src/                # report findings
//	mpls fix Fields.java -l 19 -c 29  # preview the quick fix at a position
//	mpls lenses Fields.java           # show code lenses from language servers
//	mpls serve                        # run the HTTP API
//
// Example requests against mpls serve:
//
//	curl http://127.0.0.1:7450/v1/mpls/health
//
//	curl -X POST http://127.0.0.1:7450/v1/mpls/diagnostics \
//	  -H "Content-Type: application/json" \
//	  -d '{"uris": ["file:///src/app/Fields.java"], "document_format": "plaintext"}'
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errFindings) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "mpls: %v\n", err)
		os.Exit(1)
	}
}
