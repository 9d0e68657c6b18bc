/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
	"gocanvas/internal/telemetry"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// BatchOptions controls a multi-format export of one scene.
//
// Files are written as canvas.<format> directly inside OutDir; an empty
// OutDir uses the preset name relative to the working directory.
type BatchOptions struct {
	Preset  PresetName
	Formats []string // pdf, png, svg; empty means preset defaults
	OutDir  string
	Raster  RasterOptions
	Title   string
}

// BatchExport rasterizes the scene once and writes every requested format.
// It returns the written paths in format order.
func BatchExport(ctx context.Context, elements []domain.CanvasElement, opt BatchOptions) ([]string, error) {
	l := applog.WithOperation(applog.WithComponent("export"), "batch")
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	norm := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "pdf", "png", "svg":
			norm = append(norm, f)
		case "":
		default:
			return nil, fmt.Errorf("unknown format: %s", f)
		}
	}

	base := opt.OutDir
	if base == "" {
		base = string(opt.Preset)
		if base == "" {
			base = "."
		}
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}

	ro := opt.Raster
	if ro.Scale <= 0 {
		ro.Scale = presetScale(opt.Preset)
	}
	ro, err := ro.withDefaults()
	if err != nil {
		return nil, err
	}
	dc, err := rasterize(ctx, elements, ro)
	if err != nil {
		return nil, err
	}
	defer dc.Close()
	_ = dc.FlushGPU()

	var written []string
	for _, f := range norm {
		out := filepath.Join(base, "canvas."+f)
		var werr error
		switch f {
		case "png":
			werr = writeFile(out, dc.EncodePNG)
			if werr == nil {
				telemetry.Event("export_png", map[string]any{"elements": len(elements), "preset": string(opt.Preset)})
			}
		case "pdf":
			img := dc.Image()
			po := PDFOptions{RasterOptions: ro, Title: opt.Title}
			werr = writeFile(out, func(w io.Writer) error { return WritePDF(w, img, po) })
			if werr == nil {
				telemetry.Event("export_pdf", map[string]any{"elements": len(elements), "preset": string(opt.Preset)})
			}
		case "svg":
			so := SVGOptions{Width: ro.Width, Height: ro.Height, Theme: ro.Theme}
			_, werr = ExportSVG(elements, out, so)
			if werr == nil {
				telemetry.Event("export_svg", map[string]any{"elements": len(elements), "preset": string(opt.Preset)})
			}
		}
		if werr != nil {
			return written, fmt.Errorf("%s: %w", f, werr)
		}
		written = append(written, out)
	}
	l.Info("batch export done", "preset", string(opt.Preset), "files", len(written))
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{"png", "svg"}
	case PresetPrint:
		return []string{"pdf", "png"}
	default:
		return []string{"pdf"}
	}
}

// presetScale is the raster density per preset; print doubles it.
func presetScale(p PresetName) float64 {
	if p == PresetPrint {
		return 2
	}
	return 1
}
