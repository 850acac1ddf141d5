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
	"strings"

	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/javasrc"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// Engine builds code actions from diagnostics using a template table.
//
// Thread Safety:
//
//	Safe for concurrent use; the table is read-only after construction.
type Engine struct {
	templates map[diagnostics.Code]Template
}

// NewEngine creates an engine with the default templates.
func NewEngine() *Engine {
	return NewEngineWithTemplates(defaultTemplates...)
}

// NewEngineWithTemplates creates an engine with the given templates.
// A later template for the same code replaces an earlier one.
func NewEngineWithTemplates(templates ...Template) *Engine {
	e := &Engine{templates: make(map[diagnostics.Code]Template, len(templates))}
	for _, t := range templates {
		e.templates[t.Code] = t
	}
	return e
}

// Template returns the template registered for code.
func (e *Engine) Template(code diagnostics.Code) (Template, bool) {
	t, ok := e.templates[code]
	return t, ok
}

// Fix builds the code action fixing diag in doc.
//
// Description:
//
//	Locates the field or type declaration at the diagnostic start and
//	produces one edit batch: annotation inserts at the declaration start
//	(later template annotations first, each followed by a newline and the
//	declaration's indentation), then one import insert per annotation.
//	Imports go after the last import declaration, or after the package
//	declaration, or at the start of the document. An import is separated
//	from the preceding one by a single newline when both share their
//	first package segment and by a blank line otherwise. Existing imports
//	are not consulted. All edits are computed against doc.
//
// Inputs:
//
//	doc - The snapshot unit was parsed from
//	unit - Parsed model of doc
//	diag - A diagnostic previously reported for doc
//
// Outputs:
//
//	CodeAction - The fix
//	error - ErrNoTemplate, ErrDeclarationNotFound or a mapping error
func (e *Engine) Fix(doc *text.Document, unit *javasrc.CompilationUnit, diag diagnostics.Diagnostic) (CodeAction, error) {
	tmpl, ok := e.templates[diag.Code]
	if !ok {
		return CodeAction{}, fmt.Errorf("%w: %q", ErrNoTemplate, diag.Code)
	}

	offset, err := doc.PositionToOffset(diag.Range.Start)
	if err != nil {
		return CodeAction{}, fmt.Errorf("diagnostic start: %w", err)
	}

	declStart, found := declarationStart(unit, diag.Code, offset)
	if !found {
		return CodeAction{}, fmt.Errorf("%w: %s at %s", ErrDeclarationNotFound, doc.URI(), diag.Range.Start)
	}

	indent, err := indentationAt(doc, declStart)
	if err != nil {
		return CodeAction{}, err
	}
	declPos, err := doc.OffsetToPosition(declStart)
	if err != nil {
		return CodeAction{}, err
	}

	edits := make([]TextEdit, 0, 2*len(tmpl.Annotations))
	for i := len(tmpl.Annotations) - 1; i >= 0; i-- {
		edits = append(edits, TextEdit{
			Range:   text.Range{Start: declPos, End: declPos},
			NewText: "@" + simpleName(tmpl.Annotations[i]) + "\n" + indent,
		})
	}

	importEdits, err := importInserts(doc, unit, tmpl.Annotations)
	if err != nil {
		return CodeAction{}, err
	}
	edits = append(edits, importEdits...)

	return CodeAction{
		Title:       tmpl.Title,
		Kind:        KindQuickFix,
		Diagnostics: []diagnostics.Diagnostic{diag},
		Edit: DocumentEdit{
			URI:     doc.URI(),
			Version: doc.Version(),
			Edits:   edits,
		},
	}, nil
}

// CodeActions returns the fixes for diag; empty when the code has no template.
func (e *Engine) CodeActions(doc *text.Document, unit *javasrc.CompilationUnit, diag diagnostics.Diagnostic) ([]CodeAction, error) {
	if _, ok := e.templates[diag.Code]; !ok {
		return nil, nil
	}
	action, err := e.Fix(doc, unit, diag)
	if err != nil {
		return nil, err
	}
	return []CodeAction{action}, nil
}

// declarationStart finds the declaration the diagnostic was reported on.
func declarationStart(unit *javasrc.CompilationUnit, code diagnostics.Code, offset int) (int, bool) {
	if code == diagnostics.RegisterRestClientAnnotationMissing {
		if decl := unit.TypeAt(offset); decl != nil {
			return decl.Span.Start, true
		}
		return 0, false
	}
	if field := unit.FieldAt(offset); field != nil {
		return field.Span.Start, true
	}
	return 0, false
}

// indentationAt returns the whitespace between the line start and offset.
// It is empty when anything other than blanks precedes offset on its line.
func indentationAt(doc *text.Document, offset int) (string, error) {
	pos, err := doc.OffsetToPosition(offset)
	if err != nil {
		return "", err
	}
	lineStart, err := doc.PositionToOffset(text.Position{Line: pos.Line})
	if err != nil {
		return "", err
	}
	prefix := doc.Text()[lineStart:offset]
	if strings.TrimLeft(prefix, " \t") != "" {
		return "", nil
	}
	return prefix, nil
}

// importInserts builds the import declarations for the given names.
func importInserts(doc *text.Document, unit *javasrc.CompilationUnit, names []string) ([]TextEdit, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var (
		at       int
		previous string
		topOfDoc bool
	)
	switch {
	case len(unit.Imports) > 0:
		last := unit.Imports[len(unit.Imports)-1]
		at, previous = last.Span.End, last.Path
	case unit.PackageSpan != nil:
		at = unit.PackageSpan.End
	default:
		topOfDoc = true
	}

	pos, err := doc.OffsetToPosition(at)
	if err != nil {
		return nil, err
	}
	insert := text.Range{Start: pos, End: pos}

	if topOfDoc {
		var b strings.Builder
		for _, name := range names {
			b.WriteString("import " + name + ";\n")
		}
		b.WriteString("\n")
		return []TextEdit{{Range: insert, NewText: b.String()}}, nil
	}

	edits := make([]TextEdit, 0, len(names))
	for _, name := range names {
		sep := "\n\n"
		if previous != "" && firstSegment(previous) == firstSegment(name) {
			sep = "\n"
		}
		edits = append(edits, TextEdit{Range: insert, NewText: sep + "import " + name + ";"})
		previous = name
	}
	return edits, nil
}

func firstSegment(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}

func simpleName(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
