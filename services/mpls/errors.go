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
	"errors"

	"github.com/AleutianAI/mpls/services/mpls/workspace"
)

// Sentinel errors for the mpls service.
var (
	// ErrDocumentNotFound indicates a URI the workspace does not hold.
	ErrDocumentNotFound = workspace.ErrDocumentNotFound

	// ErrInvalidURI indicates a URI that is not a file URI.
	ErrInvalidURI = workspace.ErrInvalidURI

	// ErrLensNotFound indicates a label ID from an older or unknown
	// code lens response.
	ErrLensNotFound = errors.New("code lens not found")

	// ErrCommandFailed indicates a language server failed to resolve or
	// execute a clicked lens.
	ErrCommandFailed = errors.New("code lens command failed")
)
