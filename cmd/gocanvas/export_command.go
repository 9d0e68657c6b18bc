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
	"strings"

	"github.com/spf13/cobra"

	"gocanvas/internal/export"
	"gocanvas/internal/scene"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var preset, outDir, themeName, title string
	var formats []string

	cmd := &cobra.Command{
		Use:   "export <scene.json>",
		Short: "Export a scene to PDF, PNG or SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			els, err := scene.ReadFile(args[0])
			if err != nil {
				return err
			}
			p := export.PresetName(strings.ToLower(strings.TrimSpace(preset)))
			if p != export.PresetWeb && p != export.PresetPrint {
				return fmt.Errorf("unknown preset %q (want web or print)", preset)
			}
			name := cfg.General.Theme
			if themeName != "" {
				name = themeName
			}
			cat := ctx.loadCatalog()
			if _, ok := cat.Theme(name); !ok {
				return fmt.Errorf("unknown theme %q", name)
			}
			paths, err := export.BatchExport(cmd.Context(), els, export.BatchOptions{
				Preset:  p,
				Formats: formats,
				OutDir:  outDir,
				Title:   title,
				Raster: export.RasterOptions{
					Width:  cfg.Canvas.Width,
					Height: cfg.Canvas.Height,
					Theme:  cat.ThemeOrDefault(name),
				},
			})
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", string(export.PresetWeb), "Export preset: web or print")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "Formats to write: pdf, png, svg (default from preset)")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory (default ./<preset>)")
	cmd.Flags().StringVar(&themeName, "theme", "", "Background theme (default from config)")
	cmd.Flags().StringVar(&title, "title", "Canvas", "PDF document title")
	return cmd
}
