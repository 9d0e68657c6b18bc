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
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocanvas/internal/domain"
)

func sampleScene() []domain.CanvasElement {
	return []domain.CanvasElement{
		asset("img", "https://example.invalid/a.png?x=1&y=2", 10, 20, 100, 100),
		{
			ID:       "txt",
			Kind:     domain.KindText,
			Position: domain.Point{X: 150, Y: 150},
			Size:     domain.Size{Width: 100, Height: 50},
			Text:     &domain.TextProps{Content: "a < b\nsecond", FontSize: 20},
		},
	}
}

func TestWriteSVG_VectorScene(t *testing.T) {
	var buf bytes.Buffer
	th := domain.Theme{Background: "#E0F7FA", GradientTo: "#B2EBF2", TextColor: "#006064"}
	if err := WriteSVG(&buf, sampleScene(), SVGOptions{Width: 300, Height: 200, Theme: th}); err != nil {
		t.Fatalf("write svg: %v", err)
	}
	s := buf.String()
	for _, want := range []string{
		`viewBox="0 0 300 200"`,
		`<linearGradient id="bg"`,
		`fill="url(#bg)"`,
		`href="https://example.invalid/a.png?x=1&amp;y=2"`,
		`fill="#006064"`,
		`>a &lt; b</tspan>`,
		`y="174">second</tspan>`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("svg missing %q\n%s", want, s)
		}
	}
	if strings.Index(s, "<image") > strings.Index(s, "<text") {
		t.Fatalf("text must be drawn after assets")
	}
}

func TestExportSVG_DefaultName(t *testing.T) {
	out, err := ExportSVG(nil, t.TempDir(), SVGOptions{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(out) != DefaultSVGName {
		t.Fatalf("unexpected name %s", out)
	}
}

func TestBatchExport_WebPreset(t *testing.T) {
	dir := t.TempDir()
	files, err := BatchExport(context.Background(), nil, BatchOptions{Preset: PresetWeb, OutDir: dir, Raster: RasterOptions{Width: 50, Height: 40}})
	if err != nil {
		t.Fatalf("batch export web: %v", err)
	}
	checks := []string{filepath.Join(dir, "canvas.png"), filepath.Join(dir, "canvas.svg")}
	if len(files) != len(checks) {
		t.Fatalf("expected %v, got %v", checks, files)
	}
	for i, p := range checks {
		if files[i] != p {
			t.Fatalf("expected %s at %d, got %s", p, i, files[i])
		}
		st, err := os.Stat(p)
		if err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
		if st.Size() <= 0 {
			t.Fatalf("empty file: %s", p)
		}
	}
}

func TestBatchExport_PrintPresetDoublesDensity(t *testing.T) {
	dir := t.TempDir()
	if _, err := BatchExport(context.Background(), nil, BatchOptions{Preset: PresetPrint, OutDir: dir, Raster: RasterOptions{Width: 50, Height: 40}}); err != nil {
		t.Fatalf("batch export print: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "canvas.pdf")); err != nil {
		t.Fatalf("missing pdf: %v", err)
	}
	f, err := os.Open(filepath.Join(dir, "canvas.png"))
	if err != nil {
		t.Fatalf("missing png: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 80 {
		t.Fatalf("expected 100x80 print raster, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestBatchExport_UnknownFormat(t *testing.T) {
	if _, err := BatchExport(context.Background(), nil, BatchOptions{Formats: []string{"cbz"}, OutDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
