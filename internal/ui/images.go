/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gg"

	"gocanvas/internal/domain"
	"gocanvas/internal/export"
	applog "gocanvas/internal/log"
	"gocanvas/internal/textlayout"
	"gocanvas/internal/vector"
)

// imageCache decodes asset references off the UI goroutine. A reference is
// decoded once; failures are remembered so a broken URL is not refetched on
// every repaint.
type imageCache struct {
	dec     export.Decoder
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*imageEntry
}

type imageEntry struct {
	img  image.Image
	err  error
	done bool
}

func newImageCache(dec export.Decoder) *imageCache {
	if dec == nil {
		dec = export.RefDecoder{}
	}
	return &imageCache{dec: dec, timeout: 30 * time.Second, entries: map[string]*imageEntry{}}
}

// Get returns the image for ref if it is decoded. On the first miss it
// starts a decode and calls ready once it finishes, from another goroutine.
func (c *imageCache) Get(ref string, ready func()) (image.Image, error) {
	c.mu.Lock()
	e, ok := c.entries[ref]
	if ok {
		c.mu.Unlock()
		if !e.done {
			return nil, nil
		}
		return e.img, e.err
	}
	e = &imageEntry{}
	c.entries[ref] = e
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		img, err := c.dec.Decode(ctx, ref)
		if err != nil {
			applog.WithComponent("ui").Warn("asset decode failed", slog.Any("err", err))
		}
		c.mu.Lock()
		e.img, e.err, e.done = img, err, true
		c.mu.Unlock()
		if ready != nil {
			ready()
		}
	}()
	return nil, nil
}

// Forget drops refs that are no longer on the canvas.
func (c *imageCache) Forget(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ref, e := range c.entries {
		if e.done && !keep[ref] {
			delete(c.entries, ref)
		}
	}
}

// textCacheSize bounds the rendered text images kept between repaints.
const textCacheSize = 256

// textCache draws text elements with the font library faces the measurer
// uses, so the box a text grows to is the box its glyphs fill on screen.
type textCache struct {
	fonts *textlayout.FontLibrary

	mu      sync.Mutex
	entries map[textKey]image.Image
}

type textKey struct {
	content, family, color, themeColor string
	fontSize, width, height            float64
	zoom, scale, opacity               float64
}

func newTextCache(fonts *textlayout.FontLibrary) *textCache {
	return &textCache{fonts: fonts, entries: map[textKey]image.Image{}}
}

// Image returns the text of el drawn at zoom into an image covering the
// element box scaled about its centre.
func (c *textCache) Image(el domain.CanvasElement, theme domain.Theme, zoom, scale, opacity float64) (image.Image, error) {
	if el.Text == nil {
		return nil, errors.New("not a text element")
	}
	if zoom <= 0 || scale <= 0 {
		return nil, errors.New("zoom and scale must be positive")
	}
	key := textKey{
		content: el.Text.Content, family: el.Text.FontFamily, color: el.Text.Color, themeColor: theme.TextColor,
		fontSize: el.Text.FontSize, width: el.Size.Width, height: el.Size.Height,
		zoom: zoom, scale: scale, opacity: opacity,
	}
	c.mu.Lock()
	img, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return img, nil
	}

	rect := vector.FromRect(el.Bounds()).ScaleAbout(scale)
	w := max(1, int(math.Ceil(rect.W*zoom)))
	h := max(1, int(math.Ceil(rect.H*zoom)))
	dc := gg.NewContext(w, h)
	defer dc.Close()
	p := export.Painter{
		Fonts: c.fonts,
		Theme: theme,
		Place: export.Placement{Scale: zoom, Offset: vector.Pt{X: -rect.X * zoom, Y: -rect.Y * zoom}},
	}
	if err := p.Element(dc, el, opacity, scale); err != nil {
		return nil, err
	}
	_ = dc.FlushGPU()
	img = dc.Image()

	c.mu.Lock()
	if len(c.entries) >= textCacheSize {
		clear(c.entries)
	}
	c.entries[key] = img
	c.mu.Unlock()
	return img, nil
}
