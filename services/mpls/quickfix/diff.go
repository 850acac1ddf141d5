// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package quickfix

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/mpls/services/mpls/text"
)

// diffContextLines is the number of unchanged lines around a change.
const diffContextLines = 3

// UnifiedDiff renders the effect of action on doc as a unified diff.
//
// The result has a single hunk spanning the first to the last changed
// line. It is empty when the action does not change the document.
func UnifiedDiff(doc *text.Document, action CodeAction) (string, error) {
	out, err := Apply(doc, action.Edit)
	if err != nil {
		return "", err
	}
	hunk := buildHunk(splitLines(doc.Text()), splitLines(out))
	if hunk == nil {
		return "", nil
	}

	name := strings.TrimPrefix(doc.URI(), "file://")
	printed, err := diff.PrintFileDiff(&diff.FileDiff{
		OrigName: "a" + name,
		NewName:  "b" + name,
		Hunks:    []*diff.Hunk{hunk},
	})
	if err != nil {
		return "", fmt.Errorf("print diff: %w", err)
	}
	return string(printed), nil
}

func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func buildHunk(orig, updated []string) *diff.Hunk {
	prefix := 0
	for prefix < len(orig) && prefix < len(updated) && orig[prefix] == updated[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(orig)-prefix && suffix < len(updated)-prefix &&
		orig[len(orig)-1-suffix] == updated[len(updated)-1-suffix] {
		suffix++
	}
	if prefix == len(orig) && prefix == len(updated) {
		return nil
	}

	start := max(0, prefix-diffContextLines)
	origEnd := min(len(orig), len(orig)-suffix+diffContextLines)
	newEnd := min(len(updated), len(updated)-suffix+diffContextLines)

	var body bytes.Buffer
	writeLines := func(mark byte, lines []string) {
		for _, l := range lines {
			body.WriteByte(mark)
			body.WriteString(l)
			if !strings.HasSuffix(l, "\n") {
				body.WriteByte('\n')
			}
		}
	}
	writeLines(' ', orig[start:prefix])
	writeLines('-', orig[prefix:len(orig)-suffix])
	writeLines('+', updated[prefix:len(updated)-suffix])
	writeLines(' ', orig[len(orig)-suffix:origEnd])

	return &diff.Hunk{
		OrigStartLine: int32(start + 1),
		OrigLines:     int32(origEnd - start),
		NewStartLine:  int32(start + 1),
		NewLines:      int32(newEnd - start),
		Body:          body.Bytes(),
	}
}
