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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"gocanvas/internal/animation"
	"gocanvas/internal/backend"
	"gocanvas/internal/scene"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var output, framesPath, themeName string
	var step int

	cmd := &cobra.Command{
		Use:   "render <scene.json>",
		Short: "Render a scene to MP4 on the render server",
		Long: "Render sends the scene to the configured render server and writes the MP4.\n" +
			"With --frames the animation is rasterized locally into a zip of PNG frames instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			els, err := scene.ReadFile(args[0])
			if err != nil {
				return err
			}
			cat := ctx.loadCatalog()
			name := cfg.General.Theme
			if themeName != "" {
				name = themeName
			}
			if _, ok := cat.Theme(name); !ok {
				return fmt.Errorf("unknown theme %q", name)
			}
			theme := cat.ThemeOrDefault(name)
			out := cmd.OutOrStdout()

			if framesPath != "" {
				r, err := animation.NewFrameRenderer(cmd.Context(), els, animation.FrameOptions{
					Spec:         videoSpec(cfg),
					CanvasWidth:  float64(cfg.Canvas.Width),
					CanvasHeight: float64(cfg.Canvas.Height),
					Theme:        theme,
				})
				if err != nil {
					return err
				}
				m, err := animation.WriteFrameArchive(cmd.Context(), r, els, framesPath, step)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %d frames to %s\n", len(m.Frames), framesPath)
				return nil
			}

			if output == "" {
				output = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])) + ".mp4"
			}
			client := backend.NewClient(cfg.Render.BaseURL, ctx.token, cfg.Render.EffectiveTimeout())
			tty := isatty.IsTerminal(os.Stderr.Fd())
			if tty {
				progCtx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				go func() {
					_ = client.Progress(progCtx, "", func(ev backend.ProgressEvent) {
						if ev.Total > 0 {
							fmt.Fprintf(os.Stderr, "\rframe %d/%d", ev.Frame, ev.Total)
						}
					})
				}()
			}
			spec := videoSpec(cfg)
			video, err := client.Render(cmd.Context(), backend.RenderRequest{Elements: els, Theme: &theme, Video: &spec})
			if tty {
				fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				var rerr *backend.RenderError
				if errors.As(err, &rerr) && rerr.Details != "" {
					return fmt.Errorf("%s: %s", rerr.Message, rerr.Details)
				}
				return err
			}
			if dir := filepath.Dir(output); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(output, video, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s (%s)\n", output, humanize.Bytes(uint64(len(video))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output MP4 path (default <scene>.mp4)")
	cmd.Flags().StringVar(&themeName, "theme", "", "Background theme (default from config)")
	cmd.Flags().StringVar(&framesPath, "frames", "", "Write a local zip of PNG frames instead of rendering on the server")
	cmd.Flags().IntVar(&step, "step", 1, "With --frames, keep every n-th frame")
	return cmd
}
