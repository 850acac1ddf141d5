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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mpls/services/mpls/config"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "init [file]",
		Short:       "Write a config file with the defaults",
		Long:        "Writes the default configuration as YAML. An existing file is left untouched.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			file := "mpls.yaml"
			if len(args) == 1 {
				file = args[0]
			}
			if err := config.WriteDefault(file); err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("config at %s", file))
			return nil
		},
	}
}
