// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package javasrc

import "strings"

// =============================================================================
// SPANS
// =============================================================================

// Span is a half-open byte window [Start, End) into the source text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Contains reports whether offset lies in [Start, End].
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset <= s.End
}

// =============================================================================
// DECLARATIONS
// =============================================================================

// TypeKind classifies a type declaration.
type TypeKind int

const (
	// KindClass is a class declaration.
	KindClass TypeKind = iota

	// KindInterface is an interface declaration.
	KindInterface

	// KindEnum is an enum declaration.
	KindEnum

	// KindRecord is a record declaration.
	KindRecord

	// KindAnnotationType is an @interface declaration.
	KindAnnotationType
)

// String returns the Java keyword for the kind.
func (k TypeKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindEnum:
		return "enum"
	case KindRecord:
		return "record"
	case KindAnnotationType:
		return "@interface"
	default:
		return "unknown"
	}
}

// Annotated is implemented by declarations that can carry annotations.
type Annotated interface {
	// Annotations returns the directly attached annotations in source order.
	Annotations() []*Annotation
}

// Annotation is one annotation attached to a declaration.
type Annotation struct {
	// Name is the annotation name as written, without '@'.
	Name string `json:"name"`

	// QualifiedName is the resolved fully qualified name. When the name
	// cannot be resolved through imports it is the name as written.
	QualifiedName string `json:"qualifiedName"`

	// Span covers the annotation from '@' to the end of its arguments.
	Span Span `json:"span"`

	// Text is the full source text of the annotation.
	Text string `json:"text"`

	// Members are the declared element-value pairs in source order.
	// A single unnamed argument is recorded as member "value".
	Members []MemberValue `json:"members,omitempty"`
}

// Member returns the declared member with the given name.
func (a *Annotation) Member(name string) (MemberValue, bool) {
	if a == nil {
		return MemberValue{}, false
	}
	for _, m := range a.Members {
		if m.Name == name {
			return m, true
		}
	}
	return MemberValue{}, false
}

// MemberValue is one element-value pair of an annotation.
type MemberValue struct {
	// Name is the member name.
	Name string `json:"name"`

	// Value is the member value as written, including any quotes.
	Value string `json:"value"`

	// ValueSpan covers the value expression.
	ValueSpan Span `json:"valueSpan"`
}

// Modifiers holds the annotations and keywords preceding a declaration.
type Modifiers struct {
	Keywords    []string      `json:"keywords,omitempty"`
	Annotations []*Annotation `json:"annotations,omitempty"`
}

// Has reports whether the modifier keyword is present.
func (m Modifiers) Has(keyword string) bool {
	for _, k := range m.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// Variable is one declarator of a field declaration.
type Variable struct {
	Name     string `json:"name"`
	NameSpan Span   `json:"nameSpan"`
}

// FieldDecl is a field declaration, possibly declaring several variables.
//
//	@Inject @RestClient public MyService service1, service2;
type FieldDecl struct {
	// TypeName is the declared type as written, without type arguments.
	TypeName string `json:"typeName"`

	// Modifiers carries the field annotations and keywords.
	Modifiers Modifiers `json:"modifiers"`

	// Variables are the declarators in source order.
	Variables []Variable `json:"variables"`

	// Span covers the whole declaration including leading annotations.
	Span Span `json:"span"`

	// Owner is the enclosing type.
	Owner *TypeDecl `json:"-"`
}

// Annotations implements Annotated.
func (f *FieldDecl) Annotations() []*Annotation {
	if f == nil {
		return nil
	}
	return f.Modifiers.Annotations
}

// TypeDecl is a class, interface, enum, record or annotation type.
type TypeDecl struct {
	Kind TypeKind `json:"kind"`

	// Name is the simple name.
	Name string `json:"name"`

	// QualifiedName is package + enclosing types + Name, dot separated.
	QualifiedName string `json:"qualifiedName"`

	// NameSpan covers the name identifier.
	NameSpan Span `json:"nameSpan"`

	// Span covers the whole declaration including leading annotations.
	Span Span `json:"span"`

	Modifiers Modifiers    `json:"modifiers"`
	Fields    []*FieldDecl `json:"fields,omitempty"`
	Nested    []*TypeDecl  `json:"nested,omitempty"`

	// Unit is the compilation unit declaring the type.
	Unit *CompilationUnit `json:"-"`
}

// Annotations implements Annotated.
func (t *TypeDecl) Annotations() []*Annotation {
	if t == nil {
		return nil
	}
	return t.Modifiers.Annotations
}

// IsInterface reports whether the declaration is an interface.
func (t *TypeDecl) IsInterface() bool {
	return t.Kind == KindInterface
}

// =============================================================================
// COMPILATION UNIT
// =============================================================================

// Import is one import declaration.
type Import struct {
	// Path is the imported name without "import", "static", ".*" or ';'.
	Path string `json:"path"`

	Static   bool `json:"static,omitempty"`
	Wildcard bool `json:"wildcard,omitempty"`

	// Span covers the declaration from "import" to ';'.
	Span Span `json:"span"`
}

// SimpleName returns the last segment of a single-type import.
func (i Import) SimpleName() string {
	if idx := strings.LastIndexByte(i.Path, '.'); idx >= 0 {
		return i.Path[idx+1:]
	}
	return i.Path
}

// CompilationUnit is the immutable parsed model of one Java source file.
type CompilationUnit struct {
	URI string `json:"uri"`

	// Package is the declared package, empty for the default package.
	Package string `json:"package,omitempty"`

	// PackageSpan covers the package declaration when one exists.
	PackageSpan *Span `json:"packageSpan,omitempty"`

	Imports []Import    `json:"imports,omitempty"`
	Types   []*TypeDecl `json:"types,omitempty"`

	// Hash is the SHA256 of the parsed content.
	Hash string `json:"hash"`

	// Errors lists non-fatal parse problems.
	Errors []string `json:"errors,omitempty"`
}

// AllTypes returns every type declared in the unit, outer types first.
func (u *CompilationUnit) AllTypes() []*TypeDecl {
	var out []*TypeDecl
	var walk func(types []*TypeDecl)
	walk = func(types []*TypeDecl) {
		for _, t := range types {
			out = append(out, t)
			walk(t.Nested)
		}
	}
	walk(u.Types)
	return out
}

// FieldAt returns the field declaration whose span contains offset.
func (u *CompilationUnit) FieldAt(offset int) *FieldDecl {
	for _, t := range u.AllTypes() {
		for _, f := range t.Fields {
			if f.Span.Contains(offset) {
				return f
			}
		}
	}
	return nil
}

// TypeAt returns the innermost type declaration whose name contains offset.
func (u *CompilationUnit) TypeAt(offset int) *TypeDecl {
	var found *TypeDecl
	for _, t := range u.AllTypes() {
		if t.NameSpan.Contains(offset) {
			found = t
		}
	}
	return found
}

// ResolveAnnotationName resolves an annotation name as written through the
// unit's single-type imports. Unresolvable names are returned unchanged.
func (u *CompilationUnit) ResolveAnnotationName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	for _, imp := range u.Imports {
		if !imp.Static && !imp.Wildcard && imp.SimpleName() == name {
			return imp.Path
		}
	}
	return name
}
