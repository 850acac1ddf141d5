// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mpls/pkg/ux"
	"github.com/AleutianAI/mpls/services/mpls"
	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/workspace"
)

func newDiagnoseCmd(a *app) *cobra.Command {
	var (
		format   string
		exitCode bool
	)
	cmd := &cobra.Command{
		Use:   "diagnose [files or directories...]",
		Short: "Report Rest Client injection problems",
		Long: `Checks Java sources for rest client fields missing @Inject or @RestClient
and for rest client interfaces missing @RegisterRestClient.

Without arguments every document of the workspace is checked. Files
outside the workspace root are checked against the workspace types.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := a.openWorkspace(ctx)
			if err != nil {
				return err
			}
			svc := a.newService(ws, nil)
			defer svc.Close(ctx)

			uris, err := openFiles(ctx, svc, args)
			if err != nil {
				return err
			}

			var docFormat diagnostics.DocumentFormat
			switch format {
			case "":
				if a.printer.Mode() != ux.ModeMachine {
					docFormat = diagnostics.FormatPlainText
				}
			case string(diagnostics.FormatMarkdown), string(diagnostics.FormatPlainText):
				docFormat = diagnostics.DocumentFormat(format)
			default:
				return fmt.Errorf("--message-format must be markdown or plaintext, got %q", format)
			}

			result, err := svc.Diagnostics(ctx, uris, docFormat)
			if err != nil {
				return err
			}

			total := 0
			for _, diags := range result {
				total += len(diags)
			}
			if a.printer.Mode() == ux.ModeMachine {
				if err := a.printer.JSON(mpls.DiagnosticsResponse{Diagnostics: result}); err != nil {
					return err
				}
			} else {
				printFindings(a.printer, ws.Root(), result)
				a.printer.Summary(total, len(result))
			}

			if exitCode && total > 0 {
				return errFindings
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "message-format", "", "message format: markdown or plaintext (default plaintext, or the config format for JSON output)")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit with status 2 when problems are reported")
	return cmd
}

// printFindings prints the diagnostics of each document ordered by path.
func printFindings(p *ux.Printer, root string, result map[string][]diagnostics.Diagnostic) {
	uris := make([]string, 0, len(result))
	for uri := range result {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	for _, uri := range uris {
		name := displayPath(root, uri)
		findings := make([]ux.Finding, 0, len(result[uri]))
		for _, d := range result[uri] {
			findings = append(findings, ux.Finding{
				Location: fmt.Sprintf("%s:%d:%d", name, d.Range.Start.Line+1, d.Range.Start.Character+1),
				Severity: d.Severity.String(),
				Code:     string(d.Code),
				Message:  d.Message,
			})
		}
		p.Findings(name, findings)
	}
}

// displayPath renders uri relative to root when it lies below it.
func displayPath(root, uri string) string {
	path, err := workspace.PathFromURI(uri)
	if err != nil {
		return uri
	}
	if rel, err := filepath.Rel(root, path); err == nil && !filepath.IsAbs(rel) && rel != ".." && !hasDotDotPrefix(rel) {
		return rel
	}
	return path
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
