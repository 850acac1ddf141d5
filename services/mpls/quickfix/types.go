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
	"errors"
	"fmt"

	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// KindQuickFix is the LSP code action kind of every action built here.
const KindQuickFix = "quickfix"

// Sentinel errors for quick fix building and application.
var (
	// ErrNoTemplate indicates the diagnostic code has no fix template.
	ErrNoTemplate = errors.New("no quick fix for diagnostic code")

	// ErrDeclarationNotFound indicates no field or type declaration
	// exists at the diagnostic start.
	ErrDeclarationNotFound = errors.New("no declaration at diagnostic")

	// ErrStaleEdit indicates an edit batch no longer matches the document.
	ErrStaleEdit = errors.New("stale edit")
)

// TextEdit replaces Range of the original snapshot with NewText.
type TextEdit struct {
	Range   text.Range `json:"range"`
	NewText string     `json:"newText"`
}

// DocumentEdit is an ordered batch of edits against one document version.
//
// Every edit range refers to the snapshot identified by URI and Version,
// never to the text produced by an earlier edit of the batch.
type DocumentEdit struct {
	URI     string     `json:"uri"`
	Version int32      `json:"version"`
	Edits   []TextEdit `json:"edits"`
}

// CodeAction is a titled fix for one or more diagnostics.
type CodeAction struct {
	Title       string                   `json:"title"`
	Kind        string                   `json:"kind"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	Edit        DocumentEdit             `json:"edit"`
}

// StaleEditError reports an edit batch that cannot be applied atomically.
type StaleEditError struct {
	URI string

	// Expected is the version the batch was built against.
	Expected int32

	// Actual is the version of the document it was applied to.
	Actual int32

	// Reason describes the mismatch.
	Reason string

	// Cause is the underlying mapping error, if any.
	Cause error
}

// Error implements the error interface.
func (e *StaleEditError) Error() string {
	msg := fmt.Sprintf("%s for %s (edit version %d, document version %d): %s",
		ErrStaleEdit, e.URI, e.Expected, e.Actual, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes ErrStaleEdit and the cause to errors.Is / errors.As.
func (e *StaleEditError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrStaleEdit, e.Cause}
	}
	return []error{ErrStaleEdit}
}
