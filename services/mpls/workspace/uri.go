// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
)

// Sentinel errors for workspace operations.
var (
	// ErrDocumentNotFound indicates a URI the workspace does not hold.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidURI indicates a URI that is not an absolute file URI.
	ErrInvalidURI = errors.New("invalid document URI")
)

// URIFromPath returns the file URI of an absolute or relative path.
func URIFromPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// PathFromURI returns the local path of a file URI.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "file" || u.Path == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return filepath.FromSlash(u.Path), nil
}
