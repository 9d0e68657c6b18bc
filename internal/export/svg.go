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
	"fmt"
	"io"
	"os"
	"strings"

	"gocanvas/internal/domain"
	"gocanvas/internal/scene"
	"gocanvas/internal/textlayout"
)

// DefaultSVGName is the file name used when ExportSVG gets a directory.
const DefaultSVGName = "canvas.svg"

// SVGOptions controls SVG export. Sizes are canvas pixels.
type SVGOptions struct {
	Width  int
	Height int
	Theme  domain.Theme
}

// WriteSVG writes the scene as a vector document. Asset references are kept
// as image hrefs rather than decoded.
func WriteSVG(w io.Writer, elements []domain.CanvasElement, opt SVGOptions) error {
	if opt.Width <= 0 {
		opt.Width = DefaultWidth
	}
	if opt.Height <= 0 {
		opt.Height = DefaultHeight
	}
	bg := opt.Theme.Background
	if bg == "" {
		bg = "#ffffff"
	}

	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" version=\"1.1\" width=\"%dpx\" height=\"%dpx\" viewBox=\"0 0 %d %d\">\n", opt.Width, opt.Height, opt.Width, opt.Height)
	fill := escAttr(bg)
	if opt.Theme.GradientTo != "" {
		wf("  <defs><linearGradient id=\"bg\" x1=\"0\" y1=\"0\" x2=\"1\" y2=\"1\">")
		wf("<stop offset=\"0\" stop-color=\"%s\"/><stop offset=\"1\" stop-color=\"%s\"/>", escAttr(bg), escAttr(opt.Theme.GradientTo))
		wf("</linearGradient></defs>\n")
		fill = "url(#bg)"
	}
	wf("  <rect x=\"0\" y=\"0\" width=\"%d\" height=\"%d\" fill=\"%s\"/>\n", opt.Width, opt.Height, fill)

	for _, el := range scene.PaintOrder(elements) {
		r := el.Bounds()
		switch {
		case el.IsAsset():
			wf("  <image id=\"%s\" x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" preserveAspectRatio=\"none\" href=\"%s\"/>\n",
				escAttr(el.ID), r.X, r.Y, r.Width, r.Height, escAttr(el.SourceRef()))
		case el.Text != nil:
			fs := domain.ClampFontSize(el.Text.FontSize)
			col := el.Text.Color
			if col == "" {
				col = opt.Theme.TextColor
			}
			if col == "" {
				col = DefaultTextColor
			}
			font := el.Text.FontFamily
			if font == "" {
				font = "Arial, sans-serif"
			}
			wf("  <text id=\"%s\" x=\"%g\" y=\"%g\" font-family=\"%s\" font-size=\"%g\" fill=\"%s\" dominant-baseline=\"text-before-edge\">",
				escAttr(el.ID), r.X, r.Y, escAttr(font), fs, escAttr(col))
			for i, line := range textlayout.Lines(el.Text.Content) {
				wf("<tspan x=\"%g\" y=\"%g\">%s</tspan>", r.X, r.Y+float64(i)*textlayout.LineHeight(fs), escText(line))
			}
			wf("</text>\n")
		}
	}
	wf("</svg>\n")

	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

// ExportSVG writes the scene to path. A directory path (or "") receives
// DefaultSVGName.
func ExportSVG(elements []domain.CanvasElement, path string, opt SVGOptions) (string, error) {
	out, err := resolveOut(path, DefaultSVGName)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := WriteSVG(&buf, elements, opt); err != nil {
		return "", err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write svg: %w", err)
	}
	return out, nil
}

var (
	attrEscaper = strings.NewReplacer("&", "&amp;", "\"", "&quot;", "<", "&lt;", "\n", " ", "\r", "")
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

func escAttr(s string) string { return attrEscaper.Replace(s) }
func escText(s string) string { return textEscaper.Replace(s) }
