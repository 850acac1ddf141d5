// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds indicates an offset or position outside the document extent.
var ErrOutOfBounds = errors.New("out of bounds")

// OutOfBoundsError describes a mapping request that cannot be satisfied
// against a particular document snapshot.
//
// Example:
//
//	_, err := doc.OffsetToPosition(1 << 20)
//	var oob *text.OutOfBoundsError
//	if errors.As(err, &oob) {
//	    fmt.Println(oob.Reason)
//	}
type OutOfBoundsError struct {
	// URI of the document the request was made against.
	URI string

	// Version of the snapshot.
	Version int32

	// Offset is the requested byte offset, or -1 when a Position was requested.
	Offset int

	// Position is the requested position when Offset is -1.
	Position Position

	// Reason is a short description of which bound was violated.
	Reason string
}

// Error implements the error interface.
func (e *OutOfBoundsError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("offset %d %s in %s@%d: %s", e.Offset, ErrOutOfBounds, e.URI, e.Version, e.Reason)
	}
	return fmt.Sprintf("position %s %s in %s@%d: %s", e.Position, ErrOutOfBounds, e.URI, e.Version, e.Reason)
}

// Unwrap allows errors.Is(err, ErrOutOfBounds).
func (e *OutOfBoundsError) Unwrap() error {
	return ErrOutOfBounds
}
