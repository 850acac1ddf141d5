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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mpls/pkg/logging"
	"github.com/AleutianAI/mpls/pkg/ux"
	"github.com/AleutianAI/mpls/services/mpls"
	"github.com/AleutianAI/mpls/services/mpls/codelens"
	"github.com/AleutianAI/mpls/services/mpls/config"
	"github.com/AleutianAI/mpls/services/mpls/workspace"
)

// errFindings makes the process exit with status 2 when --exit-code is
// set and diagnostics were reported.
var errFindings = errors.New("diagnostics reported")

// skipConfig marks commands that run without loading a config file.
const skipConfig = "skip-config"

// app holds the global flags and the state built from them.
type app struct {
	configFile string
	logLevel   string
	logJSON    bool
	output     string
	root       string

	cfg     *config.Config
	logger  *logging.Logger
	printer *ux.Printer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "mpls",
		Short: "MicroProfile Rest Client checks for Java sources",
		Long: `mpls reports misconfigured MicroProfile Rest Client injection points,
offers quick fixes for them and shows code lenses from Java language servers.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (.yaml, .yml or .toml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.BoolVar(&a.logJSON, "log-json", false, "write logs as JSON")
	flags.StringVarP(&a.output, "output", "o", "auto", "output mode: auto, styled, plain, json")
	flags.StringVar(&a.root, "root", "", "workspace root (overrides config)")

	cmd.AddCommand(
		newInitCmd(a),
		newDiagnoseCmd(a),
		newFixCmd(a),
		newLensesCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

// setup loads the config and installs the logger and printer.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	mode, err := ux.ParseMode(a.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), mode)

	if cmd.Annotations[skipConfig] == "true" {
		a.cfg = nil
	} else {
		cfg, err := config.Load(a.configFile)
		if err != nil {
			return err
		}
		if a.root != "" {
			cfg.Workspace.Root = a.root
		}
		a.cfg = cfg
	}

	levelName := a.logLevel
	logDir := ""
	logJSON := a.logJSON
	if a.cfg != nil {
		if levelName == "" {
			levelName = a.cfg.Logging.Level
		}
		logDir = a.cfg.Logging.Dir
		logJSON = logJSON || a.cfg.Logging.JSON
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}

	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "mpls",
		JSON:    logJSON,
		Output:  cmd.ErrOrStderr(),
	})
	a.logger.SetDefault()
	return nil
}

// openWorkspace loads every Java file under the configured root.
func (a *app) openWorkspace(ctx context.Context) (*workspace.Workspace, error) {
	root, err := filepath.Abs(a.cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	ws, err := workspace.New(root, workspace.Options{
		Exclude:     a.cfg.Workspace.Exclude,
		MaxFileSize: a.cfg.Workspace.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	var loaded int
	err = a.printer.WithSpinner("Loading workspace", func() error {
		n, err := ws.Load(ctx)
		loaded = n
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Workspace loaded", slog.String("root", root), slog.Int("documents", loaded))
	return ws, nil
}

// newService creates the analysis service over ws.
func (a *app) newService(ws *workspace.Workspace, registry codelens.Registry) *mpls.Service {
	return mpls.NewService(mpls.ServiceConfig{
		DocumentFormat: a.cfg.DocumentFormat(),
		PollInterval:   a.cfg.CodeLens.PollInterval,
	}, ws, registry)
}

// openFiles makes sure each file is held by the service and returns
// their URIs. Directories are expanded to the Java files they contain.
func openFiles(ctx context.Context, svc *mpls.Service, args []string) ([]string, error) {
	var uris []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			uri, err := openFile(ctx, svc, abs)
			if err != nil {
				return nil, err
			}
			uris = append(uris, uri)
			continue
		}
		err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != abs && svc.Workspace().Excluded(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(p) != workspace.JavaExtension || svc.Workspace().Excluded(p) {
				return nil
			}
			uri, err := openFile(ctx, svc, p)
			if err != nil {
				return err
			}
			uris = append(uris, uri)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return uris, nil
}

func openFile(ctx context.Context, svc *mpls.Service, path string) (string, error) {
	uri, err := workspace.URIFromPath(path)
	if err != nil {
		return "", err
	}
	if _, err := svc.Open(ctx, uri, ""); err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	return uri, nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.printer.Mode() == ux.ModeMachine {
				return a.printer.JSON(map[string]string{"version": mpls.ServiceVersion})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mpls %s\n", mpls.ServiceVersion)
			return nil
		},
	}
}
