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

import "fmt"

// Position is a zero-based line/character location in a document.
//
// Character counts UTF-16 code units from the start of the line, matching
// the Language Server Protocol.
type Position struct {
	// Line is the zero-based line number.
	Line int `json:"line"`

	// Character is the zero-based UTF-16 offset within the line.
	Character int `json:"character"`
}

// Compare orders positions lexicographically by line, then character.
// It returns -1, 0 or +1.
func (p Position) Compare(other Position) int {
	switch {
	case p.Line < other.Line:
		return -1
	case p.Line > other.Line:
		return 1
	case p.Character < other.Character:
		return -1
	case p.Character > other.Character:
		return 1
	}
	return 0
}

// String renders the position as 1-based line:column for humans.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Character+1)
}

// Range is a span between two positions, Start <= End.
type Range struct {
	// Start is the inclusive start position.
	Start Position `json:"start"`

	// End is the exclusive end position.
	End Position `json:"end"`
}

// Contains reports whether pos lies inside the closed interval [Start, End].
//
// Callers that need a half-open check compare against End explicitly.
func (r Range) Contains(pos Position) bool {
	return r.Start.Compare(pos) <= 0 && pos.Compare(r.End) <= 0
}

// IsEmpty reports whether Start equals End.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// String renders the range for logs and CLI output.
func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}
