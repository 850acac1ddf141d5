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
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mpls/pkg/ux"
	"github.com/AleutianAI/mpls/services/mpls"
	"github.com/AleutianAI/mpls/services/mpls/diagnostics"
	"github.com/AleutianAI/mpls/services/mpls/quickfix"
	"github.com/AleutianAI/mpls/services/mpls/text"
	"github.com/AleutianAI/mpls/services/mpls/workspace"
)

// errNoFix is returned when no fixable diagnostic matches the request.
var errNoFix = errors.New("no quick fix available")

type fixOptions struct {
	line      int
	character int
	code      string
	all       bool
	write     bool
}

func newFixCmd(a *app) *cobra.Command {
	var opts fixOptions
	cmd := &cobra.Command{
		Use:   "fix <file>",
		Short: "Preview or apply quick fixes",
		Long: `Shows the quick fix for the diagnostic at --line and --character as a
unified diff. With --all every fixable diagnostic of the file is fixed in
turn. --write stores the result.

Lines and characters are 1-based.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.all && opts.line <= 0 {
				return errors.New("either --line or --all is required")
			}
			ctx := cmd.Context()
			ws, err := a.openWorkspace(ctx)
			if err != nil {
				return err
			}
			svc := a.newService(ws, nil)
			defer svc.Close(ctx)

			uris, err := openFiles(ctx, svc, args[:1])
			if err != nil {
				return err
			}
			if len(uris) != 1 {
				return fmt.Errorf("%s is not a Java file", args[0])
			}
			return runFix(ctx, a.printer, svc, uris[0], opts)
		},
	}
	cmd.Flags().IntVarP(&opts.line, "line", "l", 0, "line of the diagnostic (1-based)")
	cmd.Flags().IntVarP(&opts.character, "character", "c", 1, "character of the diagnostic (1-based)")
	cmd.Flags().StringVar(&opts.code, "code", "", "only fix diagnostics with this code")
	cmd.Flags().BoolVar(&opts.all, "all", false, "fix every fixable diagnostic")
	cmd.Flags().BoolVarP(&opts.write, "write", "w", false, "write the fixed file")
	return cmd
}

// fixResult is the machine output of the fix command.
type fixResult struct {
	URI     string                `json:"uri"`
	Actions []quickfix.CodeAction `json:"actions"`
	Diffs   []string              `json:"diffs"`
	Written bool                  `json:"written"`
}

func runFix(ctx context.Context, p *ux.Printer, svc *mpls.Service, uri string, opts fixOptions) error {
	res := fixResult{URI: uri, Actions: []quickfix.CodeAction{}, Diffs: []string{}}
	target := text.Position{Line: opts.line - 1, Character: opts.character - 1}

	// Each applied fix shifts later ranges, so diagnostics are recomputed
	// after every application. The bound guards against a fix that does
	// not remove its diagnostic.
	var doc *text.Document
	for attempts := 0; attempts < 64; attempts++ {
		action, diff, ok, err := nextFix(ctx, svc, uri, target, opts)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		res.Actions = append(res.Actions, action)
		res.Diffs = append(res.Diffs, diff)

		doc, err = svc.ApplyCodeAction(ctx, action)
		if err != nil {
			return err
		}
		if !opts.all {
			break
		}
	}
	if len(res.Actions) == 0 {
		return errNoFix
	}

	if opts.write {
		if err := writeDocument(doc); err != nil {
			return err
		}
		res.Written = true
	}

	if p.Mode() == ux.ModeMachine {
		return p.JSON(res)
	}
	for i, action := range res.Actions {
		p.Title(action.Title)
		p.Diff(res.Diffs[i])
	}
	if res.Written {
		path, _ := workspace.PathFromURI(uri)
		p.Success(fmt.Sprintf("wrote %s", path))
	}
	return nil
}

// nextFix finds the first fixable diagnostic matching opts and returns
// its action with a preview diff.
func nextFix(ctx context.Context, svc *mpls.Service, uri string, target text.Position, opts fixOptions) (quickfix.CodeAction, string, bool, error) {
	result, err := svc.Diagnostics(ctx, []string{uri}, diagnostics.FormatPlainText)
	if err != nil {
		return quickfix.CodeAction{}, "", false, err
	}
	for _, d := range result[uri] {
		if opts.code != "" && string(d.Code) != opts.code {
			continue
		}
		if !opts.all && !d.Range.Contains(target) {
			continue
		}
		resp, err := svc.CodeActions(ctx, mpls.CodeActionRequest{URI: uri, Diagnostic: d, Preview: true})
		if err != nil {
			return quickfix.CodeAction{}, "", false, err
		}
		if len(resp.Actions) == 0 {
			continue
		}
		return resp.Actions[0], resp.Diffs[0], true, nil
	}
	return quickfix.CodeAction{}, "", false, nil
}

func writeDocument(doc *text.Document) error {
	path, err := workspace.PathFromURI(doc.URI())
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(doc.Text()), info.Mode().Perm())
}
