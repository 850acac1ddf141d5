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

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// DefaultMaxFileSize is the default parser size limit (4 MiB).
const DefaultMaxFileSize = 4 << 20

// Parser builds CompilationUnit models from Java source using tree-sitter.
//
// Description:
//
//	Each Parse call creates its own tree-sitter parser, so a single
//	Parser value is safe to share between goroutines. The resulting
//	model is immutable and does not retain the syntax tree.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Parser struct {
	maxFileSize int64
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxFileSize sets the maximum accepted content size in bytes.
func WithMaxFileSize(n int64) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// NewParser creates a Java parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses one Java source file.
//
// Description:
//
//	Parses content with the tree-sitter Java grammar and extracts the
//	package, imports and (nested) type declarations with their fields
//	and annotations. Annotation names are resolved through single-type
//	imports. Syntax errors do not fail the parse; they are reported in
//	CompilationUnit.Errors and whatever could be recovered is returned.
//
// Inputs:
//
//	ctx - Context for cancellation
//	uri - Document URI recorded on the unit
//	content - Source bytes, must be valid UTF-8
//
// Outputs:
//
//	*CompilationUnit - The parsed model
//	error - ErrFileTooLarge, ErrInvalidContent, ErrParseFailed or ctx error
func (p *Parser) Parse(ctx context.Context, uri string, content []byte) (*CompilationUnit, error) {
	ctx, span := startParseSpan(ctx, uri, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if !utf8.Valid(content) {
		recordParseMetrics(ctx, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		recordParseMetrics(ctx, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: nil root node", ErrParseFailed)
	}

	b := &builder{
		content: content,
		unit: &CompilationUnit{
			URI:  uri,
			Hash: hex.EncodeToString(hash[:]),
		},
	}
	if root.HasError() {
		b.unit.Errors = append(b.unit.Errors, "source contains syntax errors")
	}
	b.build(root)

	typeCount := len(b.unit.AllTypes())
	recordParseMetrics(ctx, time.Since(start), typeCount, true)

	slog.Debug("parsed java source",
		slog.String("uri", uri),
		slog.Int("types", typeCount),
		slog.Int("imports", len(b.unit.Imports)),
		slog.Duration("duration", time.Since(start)),
	)

	return b.unit, nil
}

// =============================================================================
// MODEL BUILDER
// =============================================================================

type builder struct {
	content []byte
	unit    *CompilationUnit
}

func (b *builder) text(node *sitter.Node) string {
	return string(b.content[node.StartByte():node.EndByte()])
}

func spanOf(node *sitter.Node) Span {
	return Span{Start: int(node.StartByte()), End: int(node.EndByte())}
}

func isTypeDeclaration(nodeType string) bool {
	switch nodeType {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		return true
	}
	return false
}

func (b *builder) build(root *sitter.Node) {
	// Package and imports come first so type and annotation names
	// can be resolved while the declarations are walked.
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "package_declaration":
			b.packageDecl(child)
		case "import_declaration":
			b.importDecl(child)
		}
	}
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if isTypeDeclaration(child.Type()) {
			b.unit.Types = append(b.unit.Types, b.typeDecl(child, nil))
		}
	}
}

func (b *builder) packageDecl(node *sitter.Node) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier", "scoped_identifier":
			b.unit.Package = b.text(child)
		}
	}
	span := spanOf(node)
	b.unit.PackageSpan = &span
}

func (b *builder) importDecl(node *sitter.Node) {
	imp := Import{Span: spanOf(node)}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "static":
			imp.Static = true
		case "identifier", "scoped_identifier":
			imp.Path = b.text(child)
		case "asterisk":
			imp.Wildcard = true
		}
	}
	if imp.Path != "" {
		b.unit.Imports = append(b.unit.Imports, imp)
	}
}

func (b *builder) typeDecl(node *sitter.Node, outer *TypeDecl) *TypeDecl {
	decl := &TypeDecl{
		Span: spanOf(node),
		Unit: b.unit,
	}
	switch node.Type() {
	case "interface_declaration":
		decl.Kind = KindInterface
	case "enum_declaration":
		decl.Kind = KindEnum
	case "record_declaration":
		decl.Kind = KindRecord
	case "annotation_type_declaration":
		decl.Kind = KindAnnotationType
	default:
		decl.Kind = KindClass
	}

	if name := node.ChildByFieldName("name"); name != nil {
		decl.Name = b.text(name)
		decl.NameSpan = spanOf(name)
	}
	switch {
	case outer != nil:
		decl.QualifiedName = outer.QualifiedName + "." + decl.Name
	case b.unit.Package != "":
		decl.QualifiedName = b.unit.Package + "." + decl.Name
	default:
		decl.QualifiedName = decl.Name
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == "modifiers" {
			decl.Modifiers = b.modifiers(child)
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		b.typeBody(body, decl)
	}
	return decl
}

func (b *builder) typeBody(body *sitter.Node, decl *TypeDecl) {
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch {
		case child.Type() == "field_declaration":
			decl.Fields = append(decl.Fields, b.fieldDecl(child, decl))
		case child.Type() == "enum_body_declarations":
			b.typeBody(child, decl)
		case isTypeDeclaration(child.Type()):
			decl.Nested = append(decl.Nested, b.typeDecl(child, decl))
		}
	}
}

func (b *builder) fieldDecl(node *sitter.Node, owner *TypeDecl) *FieldDecl {
	field := &FieldDecl{
		Span:  spanOf(node),
		Owner: owner,
	}

	if typ := node.ChildByFieldName("type"); typ != nil {
		field.TypeName = b.typeName(typ)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "modifiers":
			field.Modifiers = b.modifiers(child)
		case "variable_declarator":
			if name := child.ChildByFieldName("name"); name != nil {
				field.Variables = append(field.Variables, Variable{
					Name:     b.text(name),
					NameSpan: spanOf(name),
				})
			}
		}
	}
	return field
}

// typeName returns the raw type name of a field type, dropping type arguments.
func (b *builder) typeName(node *sitter.Node) string {
	if node.Type() == "generic_type" && node.NamedChildCount() > 0 {
		node = node.NamedChild(0)
	}
	return strings.Join(strings.Fields(b.text(node)), "")
}

func (b *builder) modifiers(node *sitter.Node) Modifiers {
	var mods Modifiers
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "marker_annotation", "annotation":
			mods.Annotations = append(mods.Annotations, b.annotation(child))
		default:
			if !child.IsNamed() {
				mods.Keywords = append(mods.Keywords, child.Type())
			}
		}
	}
	return mods
}

func (b *builder) annotation(node *sitter.Node) *Annotation {
	ann := &Annotation{
		Span: spanOf(node),
		Text: b.text(node),
	}
	if name := node.ChildByFieldName("name"); name != nil {
		ann.Name = b.text(name)
		ann.QualifiedName = b.unit.ResolveAnnotationName(ann.Name)
	}

	args := node.ChildByFieldName("arguments")
	if args == nil {
		return ann
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		switch child.Type() {
		case "element_value_pair":
			key := child.ChildByFieldName("key")
			value := child.ChildByFieldName("value")
			if key == nil || value == nil {
				continue
			}
			ann.Members = append(ann.Members, MemberValue{
				Name:      b.text(key),
				Value:     b.text(value),
				ValueSpan: spanOf(value),
			})
		case "line_comment", "block_comment":
		default:
			ann.Members = append(ann.Members, MemberValue{
				Name:      "value",
				Value:     b.text(child),
				ValueSpan: spanOf(child),
			})
		}
	}
	return ann
}
