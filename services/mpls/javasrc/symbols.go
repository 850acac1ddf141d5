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
	"sort"
	"strings"
)

// SymbolTable indexes the type declarations of a set of compilation units
// by fully qualified name.
//
// Description:
//
//	A SymbolTable is built once from a workspace snapshot and never
//	mutated, so it can be shared freely between request goroutines.
//	Rebuild it when any unit changes.
//
// Thread Safety:
//
//	Safe for concurrent use.
type SymbolTable struct {
	units []*CompilationUnit
	types map[string]*TypeDecl
}

// NewSymbolTable indexes the given units. When two units declare the same
// qualified name the first one wins.
func NewSymbolTable(units ...*CompilationUnit) *SymbolTable {
	st := &SymbolTable{
		units: make([]*CompilationUnit, 0, len(units)),
		types: make(map[string]*TypeDecl),
	}
	for _, u := range units {
		if u == nil {
			continue
		}
		st.units = append(st.units, u)
		for _, t := range u.AllTypes() {
			if _, exists := st.types[t.QualifiedName]; !exists {
				st.types[t.QualifiedName] = t
			}
		}
	}
	sort.SliceStable(st.units, func(i, j int) bool { return st.units[i].URI < st.units[j].URI })
	return st
}

// Units returns the indexed units ordered by URI.
func (st *SymbolTable) Units() []*CompilationUnit {
	return st.units
}

// Lookup returns the type with the exact qualified name.
func (st *SymbolTable) Lookup(qualifiedName string) (*TypeDecl, bool) {
	t, ok := st.types[qualifiedName]
	return t, ok
}

// Resolve resolves a type name as written in unit to its declaration.
//
// Description:
//
//	Resolution follows Java's scoping order closely enough for field
//	types: a qualified name is looked up as is; a simple name is tried
//	against single-type imports, types declared in the same unit, the
//	unit's package and finally on-demand (wildcard) imports.
//
// Outputs:
//
//	*TypeDecl - The declaration, nil when the name is not declared in
//	            the indexed units (e.g. JDK or library types)
func (st *SymbolTable) Resolve(unit *CompilationUnit, name string) *TypeDecl {
	if name == "" {
		return nil
	}
	if t, ok := st.types[name]; ok && strings.Contains(name, ".") {
		return t
	}
	if unit == nil {
		return nil
	}

	head, rest := name, ""
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		head, rest = name[:idx], name[idx:]
	}

	for _, imp := range unit.Imports {
		if !imp.Static && !imp.Wildcard && imp.SimpleName() == head {
			if t, ok := st.types[imp.Path+rest]; ok {
				return t
			}
		}
	}

	for _, local := range unit.AllTypes() {
		if local.Name == head {
			if t, ok := st.types[local.QualifiedName+rest]; ok {
				return t
			}
		}
	}

	samePackage := name
	if unit.Package != "" {
		samePackage = unit.Package + "." + name
	}
	if t, ok := st.types[samePackage]; ok {
		return t
	}

	for _, imp := range unit.Imports {
		if imp.Wildcard && !imp.Static {
			if t, ok := st.types[imp.Path+"."+name]; ok {
				return t
			}
		}
	}
	return nil
}

// ResolveField resolves the declared type of a field.
func (st *SymbolTable) ResolveField(field *FieldDecl) *TypeDecl {
	if field == nil || field.Owner == nil {
		return nil
	}
	return st.Resolve(field.Owner.Unit, field.TypeName)
}
