/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package animation

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gg"

	"gocanvas/internal/catalog"
	"gocanvas/internal/domain"
	"gocanvas/internal/export"
	applog "gocanvas/internal/log"
	"gocanvas/internal/scene"
	"gocanvas/internal/textlayout"
)

// FrameOptions configures a FrameRenderer. Zero values pick DefaultVideo, the
// default export canvas, the default theme and the built-in fonts.
type FrameOptions struct {
	Spec         domain.VideoSpec
	CanvasWidth  float64
	CanvasHeight float64
	Theme        domain.Theme
	Fonts        *textlayout.FontLibrary
	Decoder      export.Decoder
}

// FrameRenderer rasterizes animation frames of one scene. Assets are decoded
// once when the renderer is built.
type FrameRenderer struct {
	spec    domain.VideoSpec
	painter *export.Painter
}

// NewFrameRenderer decodes the scene's assets and prepares a renderer.
func NewFrameRenderer(ctx context.Context, elements []domain.CanvasElement, opts FrameOptions) (*FrameRenderer, error) {
	if opts.Spec.Width <= 0 || opts.Spec.Height <= 0 || opts.Spec.FPS <= 0 {
		opts.Spec = DefaultVideo
	}
	if opts.CanvasWidth <= 0 || opts.CanvasHeight <= 0 {
		opts.CanvasWidth, opts.CanvasHeight = export.DefaultWidth, export.DefaultHeight
	}
	if opts.Theme.Background == "" {
		opts.Theme = catalog.DefaultTheme
	}
	if opts.Fonts == nil {
		lib, err := textlayout.NewFontLibrary()
		if err != nil {
			return nil, fmt.Errorf("load fonts: %w", err)
		}
		opts.Fonts = lib
	}
	assets, err := export.DecodeAll(ctx, opts.Decoder, elements)
	if err != nil {
		return nil, fmt.Errorf("decode assets: %w", err)
	}
	return &FrameRenderer{
		spec: opts.Spec,
		painter: &export.Painter{
			Fonts:  opts.Fonts,
			Assets: assets,
			Theme:  opts.Theme,
			Place:  export.Fit(opts.CanvasWidth, opts.CanvasHeight, opts.Spec.Width, opts.Spec.Height),
		},
	}, nil
}

// Spec returns the video geometry frames are rendered at.
func (r *FrameRenderer) Spec() domain.VideoSpec { return r.spec }

func (r *FrameRenderer) draw(ctx context.Context, elements []domain.CanvasElement, frame int) (*gg.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	visuals := make(map[string]Visual, len(elements))
	for _, v := range Render(elements, frame) {
		visuals[v.ID] = v
	}
	dc := gg.NewContext(r.spec.Width, r.spec.Height)
	if err := r.painter.Background(dc); err != nil {
		_ = dc.Close()
		return nil, err
	}
	for _, el := range scene.PaintOrder(elements) {
		v := visuals[el.ID]
		if err := r.painter.Element(dc, el, v.Opacity, v.Scale); err != nil {
			_ = dc.Close()
			return nil, fmt.Errorf("frame %d: draw %s: %w", frame, el.ID, err)
		}
	}
	_ = dc.FlushGPU()
	return dc, nil
}

// RasterizeFrame composites one frame: each element scaled about its centre
// and faded per its Visual, in paint order.
func (r *FrameRenderer) RasterizeFrame(ctx context.Context, elements []domain.CanvasElement, frame int) (image.Image, error) {
	dc, err := r.draw(ctx, elements, frame)
	if err != nil {
		return nil, err
	}
	defer dc.Close()
	return dc.Image(), nil
}

// EncodeFrame writes one frame as PNG to w.
func (r *FrameRenderer) EncodeFrame(ctx context.Context, w io.Writer, elements []domain.CanvasElement, frame int) error {
	dc, err := r.draw(ctx, elements, frame)
	if err != nil {
		return err
	}
	defer dc.Close()
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("frame %d: encode: %w", frame, err)
	}
	return nil
}

// WriteFrames streams every frame of the video as concatenated PNGs, the
// image2pipe input the encoder expects. progress, when set, is called after
// each frame.
func (r *FrameRenderer) WriteFrames(ctx context.Context, w io.Writer, elements []domain.CanvasElement, progress func(done, total int)) error {
	l := applog.WithOperation(applog.WithComponent("animation"), "frames")
	total := r.spec.DurationInFrames
	for f := 0; f < total; f++ {
		if err := r.EncodeFrame(ctx, w, elements, f); err != nil {
			return err
		}
		if progress != nil {
			progress(f+1, total)
		}
	}
	l.DebugContext(ctx, "frames written", "frames", total, "elements", len(elements))
	return nil
}
