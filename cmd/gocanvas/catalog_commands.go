/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gocanvas/internal/catalog"
	"gocanvas/internal/config"
)

func newThemesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "List export themes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			rows := [][]string{}
			for _, t := range ctx.loadCatalog().Themes() {
				gradient := t.GradientTo
				if gradient == "" {
					gradient = "-"
				}
				current := ""
				if cfg != nil && equalFoldTrim(t.Name, cfg.General.Theme) {
					current = "*"
				}
				rows = append(rows, []string{current, t.Name, t.Background, gradient, t.TextColor})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"", "Name", "Background", "Gradient", "Text"}, rows, nil))
			return nil
		},
	}
}

func newStickersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stickers",
		Short: "List the sticker catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := [][]string{}
			for _, s := range ctx.loadCatalog().Stickers() {
				rows = append(rows, []string{s.Category, s.Name, s.URL})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Category", "Name", "URL"}, rows, nil))
			return nil
		},
	}
}

func newPackCommand(ctx *commandContext) *cobra.Command {
	packCmd := &cobra.Command{
		Use:   "pack",
		Short: "Manage theme and sticker packs",
	}
	packCmd.AddCommand(&cobra.Command{
		Use:   "install <pack.zip>",
		Short: "Install a pack into the user data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.PacksDir()
			if err != nil {
				return err
			}
			target, n, err := catalog.InstallPack(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %d files into %s\n", n, target)
			return nil
		},
	})
	packCmd.AddCommand(&cobra.Command{
		Use:   "export <pack.json> <out.zip>",
		Short: "Build a pack archive from a manifest and the sticker files it names",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := catalog.ValidateManifest(raw)
			if err != nil {
				return err
			}
			files := catalog.PackFiles(m, filepath.Dir(args[0]))
			if err := catalog.ExportPack(m, files, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported pack %s (%d themes, %d files) to %s\n", m.Name, len(m.Themes), len(files), args[1])
			return nil
		},
	})
	packCmd.AddCommand(&cobra.Command{
		Use:   "dir",
		Short: "Print the packs directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.PacksDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	})
	return packCmd
}
