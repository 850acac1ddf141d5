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
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/mpls/services/mpls/text"
)

// resolvedEdit is a TextEdit mapped to byte offsets of the snapshot.
type resolvedEdit struct {
	start, end int
	newText    string
	order      int
}

// Apply applies an edit batch to doc as one atomic change.
//
// Description:
//
//	The batch must target doc's URI and version. Every range is mapped
//	against doc before anything is written; inserts at the same offset
//	keep their batch order. Overlapping edits, unmappable ranges or a
//	version mismatch reject the whole batch.
//
// Outputs:
//
//	string - The new document text
//	error - *StaleEditError when the batch cannot be applied
func Apply(doc *text.Document, edit DocumentEdit) (string, error) {
	stale := func(reason string, cause error) error {
		return &StaleEditError{URI: edit.URI, Expected: edit.Version, Actual: doc.Version(), Reason: reason, Cause: cause}
	}

	if edit.URI != doc.URI() {
		return "", stale("edit targets another document", nil)
	}
	if edit.Version != doc.Version() {
		return "", stale("version mismatch", nil)
	}

	resolved := make([]resolvedEdit, 0, len(edit.Edits))
	for i, te := range edit.Edits {
		start, end, err := doc.OffsetsOf(te.Range)
		if err != nil {
			return "", stale(fmt.Sprintf("edit %d range %s", i, te.Range), err)
		}
		resolved = append(resolved, resolvedEdit{start: start, end: end, newText: te.NewText, order: i})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].start < resolved[j].start
	})
	for i := 1; i < len(resolved); i++ {
		if resolved[i-1].end > resolved[i].start {
			return "", stale(fmt.Sprintf("edits %d and %d overlap", resolved[i-1].order, resolved[i].order), nil)
		}
	}

	src := doc.Text()
	var b strings.Builder
	b.Grow(len(src))
	cursor := 0
	for _, re := range resolved {
		b.WriteString(src[cursor:re.start])
		b.WriteString(re.newText)
		cursor = re.end
	}
	b.WriteString(src[cursor:])
	return b.String(), nil
}

// ApplyToDocument applies edit and returns the next snapshot of doc.
func ApplyToDocument(doc *text.Document, edit DocumentEdit) (*text.Document, error) {
	out, err := Apply(doc, edit)
	if err != nil {
		return nil, err
	}
	return doc.WithText(out), nil
}

// WholeDocument rewrites action as a single edit replacing the entire
// original snapshot with the fixed text.
func WholeDocument(doc *text.Document, action CodeAction) (CodeAction, error) {
	out, err := Apply(doc, action.Edit)
	if err != nil {
		return CodeAction{}, err
	}
	end, err := doc.OffsetToPosition(doc.Len())
	if err != nil {
		return CodeAction{}, err
	}
	action.Edit = DocumentEdit{
		URI:     doc.URI(),
		Version: doc.Version(),
		Edits: []TextEdit{{
			Range:   text.Range{End: end},
			NewText: out,
		}},
	}
	return action, nil
}
