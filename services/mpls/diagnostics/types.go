// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnostics

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/mpls/services/mpls/text"
)

// Source is the diagnostic source reported on every MicroProfile Rest
// Client diagnostic.
const Source = "microprofile-restclient"

// Fully qualified names of the annotations the rules inspect.
const (
	InjectAnnotation             = "javax.inject.Inject"
	RestClientAnnotation         = "org.eclipse.microprofile.rest.client.inject.RestClient"
	RegisterRestClientAnnotation = "org.eclipse.microprofile.rest.client.inject.RegisterRestClient"
)

// ErrRuleFailed indicates a rule panicked or failed while checking a document.
var ErrRuleFailed = errors.New("diagnostic rule failed")

// Code identifies a fixable diagnostic.
type Code string

const (
	// RestClientAnnotationMissing reports a field with @Inject but not @RestClient.
	RestClientAnnotationMissing Code = "RestClientAnnotationMissing"

	// InjectAnnotationMissing reports a field with @RestClient but not @Inject.
	InjectAnnotationMissing Code = "InjectAnnotationMissing"

	// InjectAndRestClientAnnotationMissing reports a field with neither annotation.
	InjectAndRestClientAnnotationMissing Code = "InjectAndRestClientAnnotationMissing"

	// RegisterRestClientAnnotationMissing reports an interface that is
	// referenced by @RestClient fields but lacks @RegisterRestClient.
	RegisterRestClientAnnotationMissing Code = "RegisterRestClientAnnotationMissing"
)

// Severity follows the LSP DiagnosticSeverity numbering.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	case SeverityHint:
		return "hint"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic is a problem report attached to a document range.
//
// Diagnostics are plain values; two diagnostics are equal when all
// fields are equal, which is how a code action request identifies the
// diagnostic it wants fixed.
type Diagnostic struct {
	Range    text.Range `json:"range"`
	Severity Severity   `json:"severity"`
	Code     Code       `json:"code,omitempty"`
	Source   string     `json:"source"`
	Message  string     `json:"message"`
}

// DocumentFormat selects how names are rendered inside messages.
type DocumentFormat string

const (
	// FormatMarkdown wraps names in backticks.
	FormatMarkdown DocumentFormat = "markdown"

	// FormatPlainText renders names as is.
	FormatPlainText DocumentFormat = "plaintext"
)

// code renders a name for the format.
func (f DocumentFormat) code(name string) string {
	if f == FormatMarkdown {
		return "`" + name + "`"
	}
	return name
}

// ParseDocumentFormat maps a request value to a DocumentFormat.
// Unknown or empty values default to plain text.
func ParseDocumentFormat(v string) DocumentFormat {
	switch v {
	case "markdown", "Markdown":
		return FormatMarkdown
	default:
		return FormatPlainText
	}
}
