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
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gocanvas/internal/domain"
)

func rgb8(img image.Image, x, y int) (r, g, b uint8) {
	cr, cg, cb, _ := img.At(x, y).RGBA()
	return uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8)
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -3 && d <= 3
}

var white = domain.Theme{Name: "White", Background: "#ffffff"}

func TestRasterize_EmptySceneIsBackground(t *testing.T) {
	img, err := Rasterize(context.Background(), nil, RasterOptions{Width: 40, Height: 30, Theme: domain.Theme{Background: "#336699"}})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
	r, g, b := rgb8(img, 20, 15)
	if !near(r, 0x33) || !near(g, 0x66) || !near(b, 0x99) {
		t.Fatalf("expected background #336699, got %02x%02x%02x", r, g, b)
	}
}

func TestRasterize_DefaultSize(t *testing.T) {
	img, err := Rasterize(context.Background(), nil, RasterOptions{})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if img.Bounds().Dx() != DefaultWidth || img.Bounds().Dy() != DefaultHeight {
		t.Fatalf("expected %dx%d, got %v", DefaultWidth, DefaultHeight, img.Bounds())
	}
}

func TestRasterize_DrawsAssetsAndSkipsFailures(t *testing.T) {
	red := dataURL(t, color.RGBA{255, 0, 0, 255})
	els := []domain.CanvasElement{
		asset("ok", red, 10, 10, 50, 50),
		asset("broken", "data:image/png;base64,AAAA", 60, 10, 30, 50),
	}
	img, err := Rasterize(context.Background(), els, RasterOptions{Width: 100, Height: 80, Theme: white})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if r, g, b := rgb8(img, 35, 35); !near(r, 255) || !near(g, 0) || !near(b, 0) {
		t.Fatalf("expected red inside asset, got %d,%d,%d", r, g, b)
	}
	if r, g, b := rgb8(img, 75, 35); !near(r, 255) || !near(g, 255) || !near(b, 255) {
		t.Fatalf("expected background where decode failed, got %d,%d,%d", r, g, b)
	}
	if r, g, b := rgb8(img, 5, 5); !near(r, 255) || !near(g, 255) || !near(b, 255) {
		t.Fatalf("expected background outside asset, got %d,%d,%d", r, g, b)
	}
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestRasterize_PaintOrderIgnoresDecodeCompletion(t *testing.T) {
	var (
		mu         sync.Mutex
		finished   []string
		secondDone = make(chan struct{})
	)
	dec := DecoderFunc(func(ctx context.Context, ref string) (image.Image, error) {
		switch ref {
		case "first":
			<-secondDone
			time.Sleep(20 * time.Millisecond)
		case "second":
			defer close(secondDone)
		}
		mu.Lock()
		finished = append(finished, ref)
		mu.Unlock()
		if ref == "first" {
			return solid(color.RGBA{255, 0, 0, 255}), nil
		}
		return solid(color.RGBA{0, 0, 255, 255}), nil
	})
	els := []domain.CanvasElement{
		asset("below", "first", 10, 10, 50, 50),
		asset("above", "second", 30, 30, 50, 50),
	}
	img, err := Rasterize(context.Background(), els, RasterOptions{Width: 100, Height: 100, Theme: white, Decoder: dec})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if len(finished) != 2 || finished[0] != "second" {
		t.Fatalf("decodes should finish in reverse order, got %v", finished)
	}
	if r, g, b := rgb8(img, 45, 45); !near(r, 0) || !near(g, 0) || !near(b, 255) {
		t.Fatalf("overlap should show the later element, got %d,%d,%d", r, g, b)
	}
	if r, g, b := rgb8(img, 15, 15); !near(r, 255) || !near(g, 0) || !near(b, 0) {
		t.Fatalf("expected the earlier element outside the overlap, got %d,%d,%d", r, g, b)
	}
}

func TestRasterize_DrawsText(t *testing.T) {
	els := []domain.CanvasElement{{
		ID:       "t",
		Kind:     domain.KindText,
		Position: domain.Point{X: 0, Y: 0},
		Size:     domain.Size{Width: 200, Height: 100},
		Text:     &domain.TextProps{Content: "MMMM\nMMMM", FontSize: 40, Color: "#000000"},
	}}
	img, err := Rasterize(context.Background(), els, RasterOptions{Width: 200, Height: 100, Theme: white})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	dark := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _ := rgb8(img, x, y); r < 128 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Fatalf("expected glyph pixels")
	}
}

func TestRasterize_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Rasterize(ctx, []domain.CanvasElement{asset("a", "x", 0, 0, 50, 50)}, RasterOptions{Width: 10, Height: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestFit_Letterboxes(t *testing.T) {
	p := Fit(1800, 1600, 1920, 1080)
	if p.Scale != 1080.0/1600 {
		t.Fatalf("scale %v", p.Scale)
	}
	if p.Offset.Y != 0 || p.Offset.X <= 0 {
		t.Fatalf("expected horizontal letterbox, got %+v", p.Offset)
	}
	if Fit(0, 10, 10, 10) != Identity {
		t.Fatalf("degenerate canvas should be identity")
	}
}

func TestWritePDF_SinglePage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 90))
	var buf bytes.Buffer
	if err := WritePDF(&buf, img, PDFOptions{Title: "Trip"}); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-") {
		t.Fatalf("missing pdf header")
	}
	if !strings.Contains(out, "/Count 1") {
		t.Fatalf("expected a single page")
	}
	if !strings.Contains(strings.TrimSpace(out), "%%EOF") {
		t.Fatalf("missing trailer")
	}
	buf.Reset()
	if err := WritePDF(&buf, image.NewRGBA(image.Rect(0, 0, 0, 0)), PDFOptions{}); err == nil {
		t.Fatalf("expected error for empty raster")
	}
}

func TestExportPDF_DefaultName(t *testing.T) {
	dir := t.TempDir()
	out, err := ExportPDF(context.Background(), nil, dir, PDFOptions{RasterOptions: RasterOptions{Width: 60, Height: 40}})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(out) != DefaultPDFName {
		t.Fatalf("expected %s, got %s", DefaultPDFName, out)
	}
	st, err := os.Stat(out)
	if err != nil || st.Size() == 0 {
		t.Fatalf("pdf missing or empty: %v", err)
	}
}

func TestPDFExporter_StreamsToWriter(t *testing.T) {
	var buf bytes.Buffer
	e := PDFExporter{Options: PDFOptions{RasterOptions: RasterOptions{Width: 30, Height: 30}}}
	if err := e.ExportPDF(context.Background(), nil, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
}

func TestExportPNG_Dimensions(t *testing.T) {
	out, err := ExportPNG(context.Background(), nil, filepath.Join(t.TempDir(), "nested", "x.png"), RasterOptions{Width: 64, Height: 48})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("expected 64x48, got %dx%d", cfg.Width, cfg.Height)
	}
}
