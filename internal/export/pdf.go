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
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
	"gocanvas/internal/telemetry"
)

// DefaultPDFName is the file name used when ExportPDF gets a directory.
const DefaultPDFName = "canvas.pdf"

// PDFOptions controls PDF export. The page is sized to the canvas in points,
// one canvas pixel to one point; a raster rendered at Scale > 1 is embedded at
// that higher density.
type PDFOptions struct {
	RasterOptions
	Title  string
	Author string
}

// WritePDF writes a single-page PDF embedding img as PNG.
func WritePDF(w io.Writer, img image.Image, opts PDFOptions) error {
	b := img.Bounds()
	pw, ph := float64(b.Dx()), float64(b.Dy())
	if opts.Width > 0 && opts.Height > 0 {
		pw, ph = float64(opts.Width), float64(opts.Height)
	}
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("empty raster %dx%d", b.Dx(), b.Dy())
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	size := gofpdf.SizeType{Wd: pw, Ht: ph}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: size})
	title := opts.Title
	if title == "" {
		title = "Canvas"
	}
	author := opts.Author
	if author == "" {
		author = "gocanvas"
	}
	pdf.SetTitle(title, true)
	pdf.SetAuthor(author, true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("P", size)
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("canvas", opt, &buf)
	pdf.ImageOptions("canvas", 0, 0, pw, ph, false, opt, 0, "")
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// ExportPDF rasterizes elements and writes the PDF to path. A directory path
// (or "") receives DefaultPDFName.
func ExportPDF(ctx context.Context, elements []domain.CanvasElement, path string, opts PDFOptions) (string, error) {
	l := applog.WithOperation(applog.WithComponent("export"), "pdf")
	img, err := Rasterize(ctx, elements, opts.RasterOptions)
	if err != nil {
		return "", err
	}
	out, err := resolveOut(path, DefaultPDFName)
	if err != nil {
		return "", err
	}
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create pdf: %w", err)
	}
	if err := WritePDF(f, img, opts); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close pdf: %w", err)
	}
	l.Info("pdf written", "path", out, "elements", len(elements))
	telemetry.Event("export_pdf", map[string]any{"elements": len(elements)})
	return out, nil
}

// PDFExporter streams PDFs for the editor's export command.
type PDFExporter struct {
	Options PDFOptions
}

// ExportPDF rasterizes elements and writes the document to w.
func (e PDFExporter) ExportPDF(ctx context.Context, elements []domain.CanvasElement, w io.Writer) error {
	img, err := Rasterize(ctx, elements, e.Options.RasterOptions)
	if err != nil {
		return err
	}
	if err := WritePDF(w, img, e.Options); err != nil {
		return err
	}
	telemetry.Event("export_pdf", map[string]any{"elements": len(elements)})
	return nil
}

// resolveOut maps "" or an existing directory to dir/name and makes sure the
// parent directory exists.
func resolveOut(path, name string) (string, error) {
	if path == "" {
		path = name
	} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}
	return path, nil
}
