// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package annotation locates annotations on parsed Java declarations and
// maps annotation member values back to document ranges.
package annotation

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/mpls/services/mpls/javasrc"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// MemberInfo is the value and document range of an annotation member.
type MemberInfo struct {
	// Value is the member value with surrounding quotes removed.
	Value string `json:"value"`

	// Range covers the value in the document.
	Range text.Range `json:"range"`
}

// Matches reports whether annotation satisfies the required qualified name.
//
// Description:
//
//	The match is a suffix match: qualifiedName must end with the
//	annotation's resolved name. An annotation written with its simple
//	name that could not be resolved through imports therefore still
//	matches its fully qualified form. A nil annotation or an empty
//	resolved name never matches.
func Matches(a *javasrc.Annotation, qualifiedName string) bool {
	if a == nil || a.QualifiedName == "" {
		return false
	}
	return strings.HasSuffix(qualifiedName, a.QualifiedName)
}

// Find returns the first annotation directly attached to owner that
// matches qualifiedName, or nil.
func Find(owner javasrc.Annotated, qualifiedName string) *javasrc.Annotation {
	if owner == nil {
		return nil
	}
	for _, a := range owner.Annotations() {
		if Matches(a, qualifiedName) {
			return a
		}
	}
	return nil
}

// Has reports whether owner carries an annotation matching qualifiedName.
func Has(owner javasrc.Annotated, qualifiedName string) bool {
	return Find(owner, qualifiedName) != nil
}

// MemberExpression returns the declared member of annotation as written.
func MemberExpression(a *javasrc.Annotation, member string) (javasrc.MemberValue, bool) {
	return a.Member(member)
}

// MemberValue returns the declared value of member.
//
// One pair of surrounding double quotes is stripped when the value is
// longer than one character and both ends are quotes. The second result
// is false when the member is not declared on the annotation.
func MemberValue(a *javasrc.Annotation, member string) (string, bool) {
	m, ok := a.Member(member)
	if !ok {
		return "", false
	}
	return unquote(m.Value), true
}

func unquote(v string) string {
	if len(v) > 1 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

// MemberAt returns the member whose value covers pos.
//
// Description:
//
//	For each name in memberNames, in order, the member must be declared
//	and its name must be followed by '=' in the annotation text (the
//	pattern `.*[^"]\s*(name)\s*=.*` in dot-all mode). The value is then
//	searched in the annotation text starting at the end of the matched
//	member name, and its window is mapped through doc. The member is
//	returned when pos lies inside that range but is not its end. The
//	first qualifying member wins.
//
// Inputs:
//
//	doc - Snapshot the annotation was parsed from
//	a - The annotation
//	memberNames - Candidate member names in priority order
//	pos - Cursor position
//
// Outputs:
//
//	*MemberInfo - The member value and range, nil when none qualifies
func MemberAt(doc *text.Document, a *javasrc.Annotation, memberNames []string, pos text.Position) *MemberInfo {
	if doc == nil || a == nil {
		return nil
	}
	for _, name := range memberNames {
		value, ok := MemberValue(a, name)
		if !ok {
			continue
		}
		loc := memberPattern(name).FindStringSubmatchIndex(a.Text)
		if loc == nil {
			continue
		}
		idx := strings.Index(a.Text[loc[3]:], value)
		if idx < 0 {
			continue
		}
		r, err := doc.RangeOf(a.Span.Start+loc[3]+idx, len(value))
		if err != nil {
			continue
		}
		if pos != r.End && r.Contains(pos) {
			return &MemberInfo{Value: value, Range: r}
		}
	}
	return nil
}

func memberPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)^.*[^"]\s*(` + regexp.QuoteMeta(name) + `)\s*=.*$`)
}
