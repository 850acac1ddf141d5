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
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// =============================================================================
// DOCUMENT SNAPSHOT
// =============================================================================

// Document is an immutable snapshot of a text document.
//
// Description:
//
//	A Document pairs a URI and version with the text at that version.
//	Offsets are zero-based byte indices into the text. Positions are
//	line/character pairs with characters counted in UTF-16 code units.
//	For one snapshot the mapping between valid offsets and positions is
//	a bijection. Editing a document produces a new snapshot with a new
//	version; snapshots are never mutated.
//
// Thread Safety:
//
//	Safe for concurrent use. The line index is built once on first use.
type Document struct {
	uri     string
	version int32
	text    string

	linesOnce  sync.Once
	lineStarts []int
}

// NewDocument creates a snapshot of text at the given version.
//
// Inputs:
//
//	uri - Document URI (e.g., "file:///src/Fields.java")
//	version - Monotonic document version
//	text - Full document text
//
// Outputs:
//
//	*Document - The snapshot
func NewDocument(uri string, version int32, text string) *Document {
	return &Document{
		uri:     uri,
		version: version,
		text:    text,
	}
}

// URI returns the document URI.
func (d *Document) URI() string {
	return d.uri
}

// Version returns the snapshot version.
func (d *Document) Version() int32 {
	return d.version
}

// Text returns the full text of the snapshot.
func (d *Document) Text() string {
	return d.text
}

// Len returns the length of the text in bytes.
func (d *Document) Len() int {
	return len(d.text)
}

// WithText returns a new snapshot of the same document at version+1.
func (d *Document) WithText(text string) *Document {
	return NewDocument(d.uri, d.version+1, text)
}

// LineCount returns the number of lines in the snapshot.
//
// An empty document has one (empty) line.
func (d *Document) LineCount() int {
	return len(d.starts())
}

// starts returns the memoized line-start offsets.
func (d *Document) starts() []int {
	d.linesOnce.Do(func() {
		d.lineStarts = buildLineStarts(d.text)
	})
	return d.lineStarts
}

// buildLineStarts records the byte offset at which each line begins.
// "\n", "\r\n" and a lone "\r" all terminate a line.
func buildLineStarts(s string) []int {
	starts := make([]int, 1, strings.Count(s, "\n")+1)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				continue
			}
			starts = append(starts, i+1)
		}
	}
	return starts
}

// =============================================================================
// RANGE MAPPING
// =============================================================================

// OffsetToPosition converts a byte offset into a line/character position.
//
// Description:
//
//	Finds the containing line with a binary search over the line index,
//	then counts UTF-16 code units between the line start and the offset.
//
// Inputs:
//
//	offset - Byte offset in [0, Len()], on a rune boundary
//
// Outputs:
//
//	Position - The corresponding position
//	error - *OutOfBoundsError if the offset is negative, past the end, or
//	        inside a multi-byte rune
func (d *Document) OffsetToPosition(offset int) (Position, error) {
	if offset < 0 || offset > len(d.text) {
		return Position{}, d.offsetErr(offset, "outside document extent")
	}
	if offset < len(d.text) && !utf8.RuneStart(d.text[offset]) {
		return Position{}, d.offsetErr(offset, "inside a multi-byte character")
	}

	starts := d.starts()
	line := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1

	return Position{
		Line:      line,
		Character: utf16Len(d.text[starts[line]:offset]),
	}, nil
}

// PositionToOffset converts a line/character position into a byte offset.
//
// Description:
//
//	Walks the runes of the requested line until the UTF-16 character
//	count is reached. The position must address a character boundary on
//	that line; a character past the end of the line is rejected rather
//	than clamped.
//
// Inputs:
//
//	pos - Zero-based line/character position
//
// Outputs:
//
//	int - The corresponding byte offset
//	error - *OutOfBoundsError if the line or character is out of range, or
//	        the character splits a surrogate pair
func (d *Document) PositionToOffset(pos Position) (int, error) {
	starts := d.starts()
	if pos.Line < 0 || pos.Line >= len(starts) || pos.Character < 0 {
		return 0, d.positionErr(pos, "line outside document extent")
	}

	offset := starts[pos.Line]
	// limit is the first offset that belongs to the next line.
	limit := len(d.text) + 1
	if pos.Line+1 < len(starts) {
		limit = starts[pos.Line+1]
	}

	units := 0
	for units < pos.Character {
		if offset >= len(d.text) || offset >= limit {
			return 0, d.positionErr(pos, "character past end of line")
		}
		r, size := utf8.DecodeRuneInString(d.text[offset:])
		offset += size
		units += utf16RuneLen(r)
	}
	if units != pos.Character {
		return 0, d.positionErr(pos, "character inside a surrogate pair")
	}
	if offset >= limit {
		return 0, d.positionErr(pos, "character past end of line")
	}
	return offset, nil
}

// RangeOf maps the byte window [offset, offset+length) to a Range.
func (d *Document) RangeOf(offset, length int) (Range, error) {
	if length < 0 {
		return Range{}, d.offsetErr(offset, "negative length")
	}
	start, err := d.OffsetToPosition(offset)
	if err != nil {
		return Range{}, err
	}
	end, err := d.OffsetToPosition(offset + length)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: start, End: end}, nil
}

// OffsetsOf maps a Range back to its byte window.
func (d *Document) OffsetsOf(r Range) (start, end int, err error) {
	if r.End.Compare(r.Start) < 0 {
		return 0, 0, d.positionErr(r.End, "range end before start")
	}
	if start, err = d.PositionToOffset(r.Start); err != nil {
		return 0, 0, err
	}
	if end, err = d.PositionToOffset(r.End); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// LineText returns the text of a line without its terminator.
func (d *Document) LineText(line int) (string, error) {
	starts := d.starts()
	if line < 0 || line >= len(starts) {
		return "", d.positionErr(Position{Line: line}, "line outside document extent")
	}
	end := len(d.text)
	if line+1 < len(starts) {
		end = starts[line+1]
	}
	return strings.TrimRight(d.text[starts[line]:end], "\r\n"), nil
}

func (d *Document) offsetErr(offset int, reason string) error {
	return &OutOfBoundsError{URI: d.uri, Version: d.version, Offset: offset, Reason: reason}
}

func (d *Document) positionErr(pos Position, reason string) error {
	return &OutOfBoundsError{URI: d.uri, Version: d.version, Offset: -1, Position: pos, Reason: reason}
}

// =============================================================================
// UTF-16 HELPERS
// =============================================================================

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16RuneLen(r)
	}
	return n
}

func utf16RuneLen(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
