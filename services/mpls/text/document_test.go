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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_OffsetToPosition(t *testing.T) {
	doc := NewDocument("file:///a.java", 1, "ab\ncd\r\nef\n")

	tests := []struct {
		name   string
		offset int
		want   Position
	}{
		{"start of document", 0, Position{0, 0}},
		{"middle of first line", 1, Position{0, 1}},
		{"newline of first line", 2, Position{0, 2}},
		{"start of second line", 3, Position{1, 0}},
		{"carriage return", 5, Position{1, 2}},
		{"line feed after carriage return", 6, Position{1, 3}},
		{"start of third line", 7, Position{2, 0}},
		{"end of document", 10, Position{3, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doc.OffsetToPosition(tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocument_OutOfBounds(t *testing.T) {
	doc := NewDocument("file:///a.java", 3, "héllo\nworld")

	t.Run("negative offset", func(t *testing.T) {
		_, err := doc.OffsetToPosition(-1)
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("offset past end", func(t *testing.T) {
		_, err := doc.OffsetToPosition(doc.Len() + 1)
		var oob *OutOfBoundsError
		require.True(t, errors.As(err, &oob))
		assert.Equal(t, int32(3), oob.Version)
		assert.Equal(t, doc.Len()+1, oob.Offset)
	})

	t.Run("offset inside multi-byte rune", func(t *testing.T) {
		_, err := doc.OffsetToPosition(2)
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("line past last line", func(t *testing.T) {
		_, err := doc.PositionToOffset(Position{Line: 2, Character: 0})
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("character past end of line", func(t *testing.T) {
		_, err := doc.PositionToOffset(Position{Line: 0, Character: 6})
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("character past end of last line", func(t *testing.T) {
		_, err := doc.PositionToOffset(Position{Line: 1, Character: 6})
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})
}

func TestDocument_RoundTrip(t *testing.T) {
	// "😀" is two UTF-16 code units and four bytes.
	doc := NewDocument("file:///a.java", 1, "a😀b\n\tx\r\n\nz")

	for offset := 0; offset <= doc.Len(); offset++ {
		pos, err := doc.OffsetToPosition(offset)
		if err != nil {
			assert.ErrorIs(t, err, ErrOutOfBounds, "offset %d", offset)
			continue
		}
		back, err := doc.PositionToOffset(pos)
		require.NoError(t, err, "offset %d -> %v", offset, pos)
		assert.Equal(t, offset, back, "offset %d -> %v", offset, pos)
	}
}

func TestDocument_SurrogatePairs(t *testing.T) {
	doc := NewDocument("file:///a.java", 1, "a😀b")

	pos, err := doc.OffsetToPosition(5)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 0, Character: 3}, pos)

	_, err = doc.PositionToOffset(Position{Line: 0, Character: 2})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDocument_RangeOf(t *testing.T) {
	doc := NewDocument("file:///a.java", 1, "class A {\n    int x;\n}\n")

	r, err := doc.RangeOf(18, 1)
	require.NoError(t, err)
	assert.Equal(t, Range{Start: Position{1, 8}, End: Position{1, 9}}, r)

	start, end, err := doc.OffsetsOf(r)
	require.NoError(t, err)
	assert.Equal(t, 18, start)
	assert.Equal(t, 19, end)

	_, err = doc.RangeOf(20, 100)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDocument_LineText(t *testing.T) {
	doc := NewDocument("file:///a.java", 1, "first\r\n    second\nthird")

	line, err := doc.LineText(1)
	require.NoError(t, err)
	assert.Equal(t, "    second", line)

	line, err = doc.LineText(0)
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	assert.Equal(t, 3, doc.LineCount())

	_, err = doc.LineText(3)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDocument_EmptyDocument(t *testing.T) {
	doc := NewDocument("file:///empty.java", 0, "")

	pos, err := doc.OffsetToPosition(0)
	require.NoError(t, err)
	assert.Equal(t, Position{}, pos)

	off, err := doc.PositionToOffset(Position{})
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	assert.Equal(t, 1, doc.LineCount())
}

func TestDocument_WithText(t *testing.T) {
	doc := NewDocument("file:///a.java", 4, "old")
	next := doc.WithText("new text")

	assert.Equal(t, int32(5), next.Version())
	assert.Equal(t, doc.URI(), next.URI())
	assert.Equal(t, "old", doc.Text())
}

func TestRange_Contains(t *testing.T) {
	r := Range{Start: Position{1, 4}, End: Position{1, 9}}

	assert.True(t, r.Contains(Position{1, 4}))
	assert.True(t, r.Contains(Position{1, 9}))
	assert.True(t, r.Contains(Position{1, 6}))
	assert.False(t, r.Contains(Position{1, 3}))
	assert.False(t, r.Contains(Position{2, 0}))
	assert.False(t, r.IsEmpty())
}
