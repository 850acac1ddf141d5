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
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/AleutianAI/mpls/services/mpls/annotation"
	"github.com/AleutianAI/mpls/services/mpls/javasrc"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// Request is the input of one document check.
type Request struct {
	// Doc is the snapshot the unit was parsed from.
	Doc *text.Document

	// Unit is the parsed document.
	Unit *javasrc.CompilationUnit

	// Symbols indexes every unit of the workspace, Unit included.
	Symbols *javasrc.SymbolTable

	// Format selects message rendering.
	Format DocumentFormat
}

// Rule inspects one document and reports diagnostics.
type Rule interface {
	// Name identifies the rule in logs.
	Name() string

	// Check appends the rule's findings to r.
	Check(ctx context.Context, req Request, r *Reporter) error
}

// Reporter collects diagnostics for one document.
type Reporter struct {
	doc   *text.Document
	items []Diagnostic
}

// Warn reports a warning covering span.
func (r *Reporter) Warn(span javasrc.Span, code Code, message string) error {
	rng, err := r.doc.RangeOf(span.Start, span.Len())
	if err != nil {
		return fmt.Errorf("map span %d+%d: %w", span.Start, span.Len(), err)
	}
	r.items = append(r.items, Diagnostic{
		Range:    rng,
		Severity: SeverityWarning,
		Code:     code,
		Source:   Source,
		Message:  message,
	})
	return nil
}

// Engine runs a fixed set of rules over documents.
//
// Thread Safety:
//
//	Safe for concurrent use; rules are stateless.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with the MicroProfile Rest Client rules.
func NewEngine() *Engine {
	return &Engine{rules: []Rule{restClientFieldRule{}, registerRestClientRule{}}}
}

// NewEngineWithRules creates an engine with custom rules.
func NewEngineWithRules(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Diagnose runs every rule over one document.
//
// Description:
//
//	Rules run in order and their results are sorted by range start. A
//	rule that fails or panics aborts the document: the failure is logged
//	and returned wrapped in ErrRuleFailed with no diagnostics, so a
//	caller checking several documents can continue with the next one.
//
// Outputs:
//
//	[]Diagnostic - Findings ordered by position
//	error - ctx error, or ErrRuleFailed
func (e *Engine) Diagnose(ctx context.Context, req Request) (diags []Diagnostic, err error) {
	if req.Doc == nil || req.Unit == nil || req.Symbols == nil {
		return nil, fmt.Errorf("%w: incomplete request", ErrRuleFailed)
	}

	var current string
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("panic in diagnostic rule",
				slog.String("rule", current),
				slog.String("uri", req.Doc.URI()),
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
			diags, err = nil, fmt.Errorf("%w: %s: %v", ErrRuleFailed, current, r)
		}
	}()

	rep := &Reporter{doc: req.Doc}
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current = rule.Name()
		if err := rule.Check(ctx, req, rep); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("diagnostic rule failed",
				slog.String("rule", current),
				slog.String("uri", req.Doc.URI()),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: %s: %v", ErrRuleFailed, current, err)
		}
	}

	sort.SliceStable(rep.items, func(i, j int) bool {
		return rep.items[i].Range.Start.Compare(rep.items[j].Range.Start) < 0
	})
	return rep.items, nil
}

// =============================================================================
// REST CLIENT RULES
// =============================================================================

// restClientFieldRule checks fields typed by a rest client interface.
type restClientFieldRule struct{}

func (restClientFieldRule) Name() string { return "restclient-field" }

func (restClientFieldRule) Check(ctx context.Context, req Request, r *Reporter) error {
	for _, decl := range req.Unit.AllTypes() {
		if decl.Kind == javasrc.KindInterface || decl.Kind == javasrc.KindAnnotationType {
			continue
		}
		for _, field := range decl.Fields {
			target := req.Symbols.ResolveField(field)
			if target == nil || !target.IsInterface() {
				continue
			}
			if err := checkField(req, r, field, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkField(req Request, r *Reporter, field *javasrc.FieldDecl, target *javasrc.TypeDecl) error {
	hasInject := annotation.Has(field, InjectAnnotation)
	hasRestClient := annotation.Has(field, RestClientAnnotation)

	if !annotation.Has(target, RegisterRestClientAnnotation) {
		if !hasInject || !hasRestClient {
			return nil
		}
		for _, v := range field.Variables {
			msg := fmt.Sprintf("The corresponding %s interface does not have the @RegisterRestClient annotation. The field %s will not be injected as a CDI bean.",
				req.Format.code(target.QualifiedName), req.Format.code(v.Name))
			if err := r.Warn(v.NameSpan, "", msg); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		code Code
		msg  string
	)
	switch {
	case hasInject && !hasRestClient:
		code = RestClientAnnotationMissing
		msg = "The Rest Client object should have the @RestClient annotation to be injected as a CDI bean."
	case !hasInject && hasRestClient:
		code = InjectAnnotationMissing
		msg = "The Rest Client object should have the @Inject annotation to be injected as a CDI bean."
	case !hasInject && !hasRestClient:
		code = InjectAndRestClientAnnotationMissing
		msg = "The Rest Client object should have the @Inject and @RestClient annotations to be injected as a CDI bean."
	default:
		return nil
	}
	for _, v := range field.Variables {
		if err := r.Warn(v.NameSpan, code, msg); err != nil {
			return err
		}
	}
	return nil
}

// registerRestClientRule checks interfaces used as rest clients.
type registerRestClientRule struct{}

func (registerRestClientRule) Name() string { return "restclient-interface" }

func (registerRestClientRule) Check(ctx context.Context, req Request, r *Reporter) error {
	for _, decl := range req.Unit.AllTypes() {
		if !decl.IsInterface() || annotation.Has(decl, RegisterRestClientAnnotation) {
			continue
		}
		refs, err := countRestClientReferences(ctx, req.Symbols, decl)
		if err != nil {
			return err
		}
		if refs == 0 {
			continue
		}
		msg := fmt.Sprintf("The interface %s does not have the @RegisterRestClient annotation. The %d fields references will not be injected as CDI beans.",
			req.Format.code(decl.Name), refs)
		if err := r.Warn(decl.NameSpan, RegisterRestClientAnnotationMissing, msg); err != nil {
			return err
		}
	}
	return nil
}

// countRestClientReferences counts field declarations across the
// workspace that carry @RestClient and whose type resolves to iface.
func countRestClientReferences(ctx context.Context, symbols *javasrc.SymbolTable, iface *javasrc.TypeDecl) (int, error) {
	count := 0
	for _, unit := range symbols.Units() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for _, decl := range unit.AllTypes() {
			for _, field := range decl.Fields {
				if !annotation.Has(field, RestClientAnnotation) {
					continue
				}
				if target := symbols.ResolveField(field); target != nil && target.QualifiedName == iface.QualifiedName {
					count++
				}
			}
		}
	}
	return count, nil
}
