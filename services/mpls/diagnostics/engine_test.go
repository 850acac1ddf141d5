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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mpls/services/mpls/javasrc"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

const fixtureDir = "../testdata/rest-client-quickstart/src/main/java/org/acme/restclient"

type fixture struct {
	docs    map[string]*text.Document
	units   map[string]*javasrc.CompilationUnit
	symbols *javasrc.SymbolTable
}

func loadFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:  make(map[string]*text.Document),
		units: make(map[string]*javasrc.CompilationUnit),
	}
	var all []*javasrc.CompilationUnit
	for _, name := range []string{"Fields.java", "MyService.java", "CountriesService.java", "Country.java"} {
		content, err := os.ReadFile(filepath.Join(fixtureDir, name))
		require.NoError(t, err)
		uri := "file:///" + name
		unit, err := javasrc.NewParser().Parse(context.Background(), uri, content)
		require.NoError(t, err)
		f.docs[name] = text.NewDocument(uri, 1, string(content))
		f.units[name] = unit
		all = append(all, unit)
	}
	f.symbols = javasrc.NewSymbolTable(all...)
	return f
}

func (f *fixture) request(name string, format DocumentFormat) Request {
	return Request{Doc: f.docs[name], Unit: f.units[name], Symbols: f.symbols, Format: format}
}

func rng(line, start, end int) text.Range {
	return text.Range{
		Start: text.Position{Line: line, Character: start},
		End:   text.Position{Line: line, Character: end},
	}
}

func TestEngine_Fields(t *testing.T) {
	f := loadFixture(t)

	got, err := NewEngine().Diagnose(context.Background(), f.request("Fields.java", FormatMarkdown))
	require.NoError(t, err)

	want := []Diagnostic{
		{
			Range:    rng(12, 21, 29),
			Severity: SeverityWarning,
			Source:   Source,
			Message:  "The corresponding `org.acme.restclient.MyService` interface does not have the @RegisterRestClient annotation. The field `service1` will not be injected as a CDI bean.",
		},
		{
			Range:    rng(12, 31, 39),
			Severity: SeverityWarning,
			Source:   Source,
			Message:  "The corresponding `org.acme.restclient.MyService` interface does not have the @RegisterRestClient annotation. The field `service2` will not be injected as a CDI bean.",
		},
		{
			Range:    rng(15, 28, 55),
			Severity: SeverityWarning,
			Code:     RestClientAnnotationMissing,
			Source:   Source,
			Message:  "The Rest Client object should have the @RestClient annotation to be injected as a CDI bean.",
		},
		{
			Range:    rng(18, 28, 51),
			Severity: SeverityWarning,
			Code:     InjectAnnotationMissing,
			Source:   Source,
			Message:  "The Rest Client object should have the @Inject annotation to be injected as a CDI bean.",
		},
		{
			Range:    rng(20, 28, 64),
			Severity: SeverityWarning,
			Code:     InjectAndRestClientAnnotationMissing,
			Source:   Source,
			Message:  "The Rest Client object should have the @Inject and @RestClient annotations to be injected as a CDI bean.",
		},
	}
	assert.Equal(t, want, got)
}

func TestEngine_Interface(t *testing.T) {
	f := loadFixture(t)

	got, err := NewEngine().Diagnose(context.Background(), f.request("MyService.java", FormatMarkdown))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, Diagnostic{
		Range:    rng(2, 17, 26),
		Severity: SeverityWarning,
		Code:     RegisterRestClientAnnotationMissing,
		Source:   Source,
		Message:  "The interface `MyService` does not have the @RegisterRestClient annotation. The 1 fields references will not be injected as CDI beans.",
	}, got[0])
}

func TestEngine_PlainText(t *testing.T) {
	f := loadFixture(t)

	got, err := NewEngine().Diagnose(context.Background(), f.request("MyService.java", FormatPlainText))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "The interface MyService does not have the @RegisterRestClient annotation. The 1 fields references will not be injected as CDI beans.", got[0].Message)

	got, err = NewEngine().Diagnose(context.Background(), f.request("Fields.java", FormatPlainText))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "The corresponding org.acme.restclient.MyService interface does not have the @RegisterRestClient annotation. The field service1 will not be injected as a CDI bean.", got[0].Message)
}

func TestEngine_NoDiagnostics(t *testing.T) {
	f := loadFixture(t)

	for _, name := range []string{"CountriesService.java", "Country.java"} {
		t.Run(name, func(t *testing.T) {
			got, err := NewEngine().Diagnose(context.Background(), f.request(name, FormatMarkdown))
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestEngine_UnreferencedInterface(t *testing.T) {
	src := "package p;\n\npublic interface Lonely {}\n"
	unit, err := javasrc.NewParser().Parse(context.Background(), "file:///Lonely.java", []byte(src))
	require.NoError(t, err)

	got, err := NewEngine().Diagnose(context.Background(), Request{
		Doc:     text.NewDocument(unit.URI, 1, src),
		Unit:    unit,
		Symbols: javasrc.NewSymbolTable(unit),
		Format:  FormatMarkdown,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

type panicRule struct{}

func (panicRule) Name() string { return "panics" }

func (panicRule) Check(context.Context, Request, *Reporter) error {
	panic("boom")
}

type failRule struct{}

func (failRule) Name() string { return "fails" }

func (failRule) Check(context.Context, Request, *Reporter) error {
	return errors.New("cannot check")
}

func TestEngine_RuleFailures(t *testing.T) {
	f := loadFixture(t)

	t.Run("panic is contained", func(t *testing.T) {
		got, err := NewEngineWithRules(restClientFieldRule{}, panicRule{}).Diagnose(context.Background(), f.request("Fields.java", FormatMarkdown))
		assert.ErrorIs(t, err, ErrRuleFailed)
		assert.Nil(t, got)
	})

	t.Run("error drops document", func(t *testing.T) {
		got, err := NewEngineWithRules(failRule{}).Diagnose(context.Background(), f.request("Fields.java", FormatMarkdown))
		assert.ErrorIs(t, err, ErrRuleFailed)
		assert.Nil(t, got)
	})

	t.Run("incomplete request", func(t *testing.T) {
		_, err := NewEngine().Diagnose(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrRuleFailed)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewEngine().Diagnose(ctx, f.request("Fields.java", FormatMarkdown))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseDocumentFormat(t *testing.T) {
	assert.Equal(t, FormatMarkdown, ParseDocumentFormat("markdown"))
	assert.Equal(t, FormatMarkdown, ParseDocumentFormat("Markdown"))
	assert.Equal(t, FormatPlainText, ParseDocumentFormat(""))
	assert.Equal(t, FormatPlainText, ParseDocumentFormat("plaintext"))
	assert.Equal(t, "warning", SeverityWarning.String())
}
