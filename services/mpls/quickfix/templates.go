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

import "github.com/AleutianAI/mpls/services/mpls/diagnostics"

// Template describes the annotations a fix inserts for a diagnostic code.
type Template struct {
	Code  diagnostics.Code `json:"code"`
	Title string           `json:"title"`

	// Annotations are fully qualified names, in the order their imports
	// are added. They appear on the declaration in reverse order.
	Annotations []string `json:"annotations"`
}

var defaultTemplates = []Template{
	{
		Code:        diagnostics.InjectAnnotationMissing,
		Title:       "Insert @Inject",
		Annotations: []string{diagnostics.InjectAnnotation},
	},
	{
		Code:        diagnostics.RestClientAnnotationMissing,
		Title:       "Insert @RestClient",
		Annotations: []string{diagnostics.RestClientAnnotation},
	},
	{
		Code:        diagnostics.InjectAndRestClientAnnotationMissing,
		Title:       "Insert @Inject, @RestClient",
		Annotations: []string{diagnostics.InjectAnnotation, diagnostics.RestClientAnnotation},
	},
	{
		Code:        diagnostics.RegisterRestClientAnnotationMissing,
		Title:       "Insert @RegisterRestClient",
		Annotations: []string{diagnostics.RegisterRestClientAnnotation},
	},
}

// DefaultTemplates returns a copy of the built-in template table.
func DefaultTemplates() []Template {
	out := make([]Template, len(defaultTemplates))
	copy(out, defaultTemplates)
	return out
}
