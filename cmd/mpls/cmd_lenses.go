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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mpls/pkg/ux"
	"github.com/AleutianAI/mpls/services/mpls"
	"github.com/AleutianAI/mpls/services/mpls/codelens"
	"github.com/AleutianAI/mpls/services/mpls/lsp"
)

func newLensesCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		execute string
	)
	cmd := &cobra.Command{
		Use:   "lenses <file>",
		Short: "Show code lenses from the configured language servers",
		Long: `Starts the language servers configured for the file's extension, collects
their code lenses and prints them above the source lines they belong to.
--execute runs the command of the first lens with the given title.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			ws, err := a.openWorkspace(ctx)
			if err != nil {
				return err
			}
			mgr := lsp.NewManagerWithRegistry(ws.Root(), a.cfg.ManagerConfig(), a.cfg.Registry())
			svc := a.newService(ws, codelens.ManagerRegistry{Manager: mgr}).WithManager(mgr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = svc.Close(shutdownCtx)
			}()

			uris, err := openFiles(ctx, svc, args[:1])
			if err != nil {
				return err
			}
			if len(uris) != 1 {
				return fmt.Errorf("%s is not a Java file", args[0])
			}

			var resp *mpls.CodeLensResponse
			err = a.printer.WithSpinner("Collecting code lenses", func() error {
				resp, err = svc.CodeLenses(ctx, uris[0])
				return err
			})
			if err != nil {
				return err
			}

			if execute != "" {
				return executeLens(ctx, a.printer, svc, resp, execute)
			}
			if a.printer.Mode() == ux.ModeMachine {
				return a.printer.JSON(resp)
			}
			rows, err := lensRows(svc, resp)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				a.printer.Warning("no code lenses")
				return nil
			}
			a.printer.Lenses(rows)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout including server startup")
	cmd.Flags().StringVar(&execute, "execute", "", "run the lens with this title")
	return cmd
}

// lensRows pairs each inlay with the source line it is shown above.
func lensRows(svc *mpls.Service, resp *mpls.CodeLensResponse) ([]ux.LensRow, error) {
	doc, _, err := svc.Workspace().Document(resp.URI)
	if err != nil {
		return nil, err
	}
	rows := make([]ux.LensRow, 0, len(resp.Inlays))
	for _, in := range resp.Inlays {
		source, err := doc.LineText(in.Position.Line)
		if err != nil {
			return nil, err
		}
		row := ux.LensRow{Line: in.Position.Line, Source: source, Indent: in.Indent}
		for _, l := range in.Labels {
			row.Titles = append(row.Titles, l.Title)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func executeLens(ctx context.Context, p *ux.Printer, svc *mpls.Service, resp *mpls.CodeLensResponse, title string) error {
	for _, in := range resp.Inlays {
		for _, l := range in.Labels {
			if l.Title != title {
				continue
			}
			if err := svc.ExecuteLens(ctx, l.ID); err != nil {
				return err
			}
			if p.Mode() == ux.ModeMachine {
				return p.JSON(mpls.ExecuteResponse{Executed: true})
			}
			p.Success(fmt.Sprintf("%s (%s)", title, l.Server))
			return nil
		}
	}
	return fmt.Errorf("no code lens titled %q", title)
}
