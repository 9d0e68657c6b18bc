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
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/gogpu/gg"

	"gocanvas/internal/catalog"
	"gocanvas/internal/domain"
	"gocanvas/internal/scene"
	"gocanvas/internal/textlayout"
	"gocanvas/internal/vector"
)

// Default export surface in pixels.
const (
	DefaultWidth  = 1800
	DefaultHeight = 1600
)

// DefaultTextColor is used when neither the element nor the theme names one.
const DefaultTextColor = "#000000"

// Placement maps canvas units onto the output surface: a uniform scale
// followed by an offset in output pixels.
type Placement struct {
	Scale  float64
	Offset vector.Pt
}

// Identity draws canvas units one-to-one.
var Identity = Placement{Scale: 1}

// Fit returns the placement that letterboxes a canvas of cw×ch into w×h.
func Fit(cw, ch float64, w, h int) Placement {
	if cw <= 0 || ch <= 0 || w <= 0 || h <= 0 {
		return Identity
	}
	k := min(float64(w)/cw, float64(h)/ch)
	return Placement{
		Scale:  k,
		Offset: vector.Pt{X: (float64(w) - cw*k) / 2, Y: (float64(h) - ch*k) / 2},
	}
}

func (p Placement) rect(r vector.Rect) vector.Rect {
	k := p.Scale
	if k <= 0 {
		k = 1
	}
	return vector.Rect{X: r.X*k + p.Offset.X, Y: r.Y*k + p.Offset.Y, W: r.W * k, H: r.H * k}
}

// Painter composites elements onto a gg context. It is shared by the still
// exporters and the frame rasterizer.
type Painter struct {
	Fonts  *textlayout.FontLibrary
	Assets *Assets
	Theme  domain.Theme
	Place  Placement
}

// Background clears dc to the theme background, drawing a diagonal gradient
// when the theme defines one.
func (p *Painter) Background(dc *gg.Context) error {
	bg := strings.TrimSpace(p.Theme.Background)
	if bg == "" {
		bg = "#ffffff"
	}
	dc.ClearWithColor(gg.Hex(bg))
	if p.Theme.GradientTo == "" {
		return nil
	}
	w, h := float64(dc.Width()), float64(dc.Height())
	dc.SetFillBrush(gg.NewLinearGradientBrush(0, 0, w, h).
		AddColorStop(0, gg.Hex(bg)).
		AddColorStop(1, gg.Hex(p.Theme.GradientTo)))
	dc.DrawRectangle(0, 0, w, h)
	if err := dc.Fill(); err != nil {
		return fmt.Errorf("fill background: %w", err)
	}
	return nil
}

// Element draws el scaled about its centre by scale and faded by opacity.
// Assets without a decoded bitmap are skipped.
func (p *Painter) Element(dc *gg.Context, el domain.CanvasElement, opacity, scale float64) error {
	if opacity <= 0 || scale <= 0 {
		return nil
	}
	opacity = min(opacity, 1)
	local := vector.FromRect(el.Bounds()).ScaleAbout(scale)
	r := p.Place.rect(local)
	switch {
	case el.IsAsset():
		buf := p.Assets.Image(el.ID)
		if buf == nil {
			return nil
		}
		dc.DrawImageEx(buf, gg.DrawImageOptions{
			X:             r.X,
			Y:             r.Y,
			DstWidth:      r.W,
			DstHeight:     r.H,
			Interpolation: gg.InterpBilinear,
			Opacity:       opacity,
			BlendMode:     gg.BlendNormal,
		})
		return nil
	case el.Kind == domain.KindText && el.Text != nil:
		return p.text(dc, el.Text, r, opacity, scale)
	default:
		return fmt.Errorf("element %s: nothing to draw for kind %q", el.ID, el.Kind)
	}
}

func (p *Painter) text(dc *gg.Context, t *domain.TextProps, r vector.Rect, opacity, scale float64) error {
	k := p.Place.Scale
	if k <= 0 {
		k = 1
	}
	fs := domain.ClampFontSize(t.FontSize) * scale * k
	face := p.Fonts.Face(t.FontFamily, fs)
	if face == nil {
		return errors.New("no font face available")
	}
	col := t.Color
	if strings.TrimSpace(col) == "" {
		col = p.Theme.TextColor
	}
	if strings.TrimSpace(col) == "" {
		col = DefaultTextColor
	}
	c := gg.Hex(col)
	dc.SetRGBA(c.R, c.G, c.B, c.A*opacity)
	dc.SetFont(face)
	ascent := face.Metrics().Ascent
	for i, line := range textlayout.Lines(t.Content) {
		dc.DrawString(line, r.X, r.Y+float64(i)*textlayout.LineHeight(fs)+ascent)
	}
	return nil
}

// Paint draws the background and every element at full opacity in paint order.
func (p *Painter) Paint(dc *gg.Context, elements []domain.CanvasElement) error {
	if err := p.Background(dc); err != nil {
		return err
	}
	for _, el := range scene.PaintOrder(elements) {
		if err := p.Element(dc, el, 1, 1); err != nil {
			return fmt.Errorf("draw %s: %w", el.ID, err)
		}
	}
	return nil
}

// RasterOptions controls Rasterize. Zero values pick the defaults.
type RasterOptions struct {
	Width   int
	Height  int
	Scale   float64 // output pixels per canvas pixel; default 1
	Theme   domain.Theme
	Fonts   *textlayout.FontLibrary
	Decoder Decoder
}

func (o RasterOptions) withDefaults() (RasterOptions, error) {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Theme.Background == "" && o.Theme.Name == "" {
		o.Theme = catalog.DefaultTheme
	}
	if o.Decoder == nil {
		o.Decoder = RefDecoder{}
	}
	if o.Fonts == nil {
		lib, err := textlayout.NewFontLibrary()
		if err != nil {
			return o, fmt.Errorf("load fonts: %w", err)
		}
		o.Fonts = lib
	}
	return o, nil
}

// Rasterize decodes every asset, waits for all decodes, and composites the
// scene in paint order onto a (Width·Scale)×(Height·Scale) surface.
func Rasterize(ctx context.Context, elements []domain.CanvasElement, opts RasterOptions) (image.Image, error) {
	dc, err := rasterize(ctx, elements, opts)
	if err != nil {
		return nil, err
	}
	defer dc.Close()
	return snapshot(dc), nil
}

func rasterize(ctx context.Context, elements []domain.CanvasElement, opts RasterOptions) (*gg.Context, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	assets, err := DecodeAll(ctx, opts.Decoder, elements)
	if err != nil {
		return nil, fmt.Errorf("decode assets: %w", err)
	}
	w := int(math.Round(float64(opts.Width) * opts.Scale))
	h := int(math.Round(float64(opts.Height) * opts.Scale))
	dc := gg.NewContext(w, h)
	p := &Painter{Fonts: opts.Fonts, Assets: assets, Theme: opts.Theme, Place: Placement{Scale: opts.Scale}}
	if err := p.Paint(dc, elements); err != nil {
		_ = dc.Close()
		return nil, err
	}
	return dc, nil
}

func snapshot(dc *gg.Context) image.Image {
	_ = dc.FlushGPU()
	return dc.Image()
}
