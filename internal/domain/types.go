/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// Core data model shared by the editor, the exporters and the render server.
// The JSON form matches the wire format of the browser front end so scene
// files and render requests can be exchanged with it unchanged.

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Kind is the element variant.
type Kind string

const (
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindSticker Kind = "sticker"
)

// Size floors and font limits in canvas units.
const (
	MinWidth        = 50.0
	MinTextHeight   = 20.0
	MinAssetHeight  = 50.0
	MinFontSize     = 8.0
	MaxFontSize     = 100.0
	DefaultFontSize = 20.0
)

// Point is a canvas-space position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a canvas-space extent.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned canvas-space rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.Width && p.Y <= r.Y+r.Height
}

// TextProps is the payload of a text element.
type TextProps struct {
	Content    string  `json:"text"`
	FontSize   float64 `json:"fontSize"`
	Color      string  `json:"color"`
	FontFamily string  `json:"fontFamily"`
}

// AssetProps is the payload of image and sticker elements. SourceRef is an
// opaque reference (data URL, file path or http URL) resolved by the exporters.
type AssetProps struct {
	SourceRef   string `json:"src"`
	DisplayName string `json:"name,omitempty"`
}

// CanvasElement is one item on the canvas. Exactly one of Text or Asset is set,
// matching Kind.
type CanvasElement struct {
	ID       string
	Kind     Kind
	Position Point
	Size     Size
	Text     *TextProps
	Asset    *AssetProps
}

// MinSize returns the size floor for a kind.
func MinSize(k Kind) Size {
	if k == KindText {
		return Size{Width: MinWidth, Height: MinTextHeight}
	}
	return Size{Width: MinWidth, Height: MinAssetHeight}
}

// ClampSize floors s to the minimum for k.
func ClampSize(k Kind, s Size) Size {
	m := MinSize(k)
	return Size{Width: math.Max(s.Width, m.Width), Height: math.Max(s.Height, m.Height)}
}

// ClampFontSize bounds v to [MinFontSize, MaxFontSize]. Zero and NaN mean
// "unparseable" and fall back to DefaultFontSize.
func ClampFontSize(v float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return DefaultFontSize
	}
	return math.Max(MinFontSize, math.Min(MaxFontSize, v))
}

// Bounds returns the element rectangle.
func (e CanvasElement) Bounds() Rect {
	return Rect{X: e.Position.X, Y: e.Position.Y, Width: e.Size.Width, Height: e.Size.Height}
}

// IsAsset reports whether the element draws a decoded bitmap.
func (e CanvasElement) IsAsset() bool { return e.Kind == KindImage || e.Kind == KindSticker }

// SourceRef returns the asset reference, or "" for text.
func (e CanvasElement) SourceRef() string {
	if e.Asset == nil {
		return ""
	}
	return e.Asset.SourceRef
}

// Clone returns a deep copy so payload pointers are never shared between snapshots.
func (e CanvasElement) Clone() CanvasElement {
	c := e
	if e.Text != nil {
		t := *e.Text
		c.Text = &t
	}
	if e.Asset != nil {
		a := *e.Asset
		c.Asset = &a
	}
	return c
}

type wireElement struct {
	ID         string          `json:"id"`
	Type       Kind            `json:"type"`
	Pos        Point           `json:"pos"`
	Size       Size            `json:"size"`
	Properties json.RawMessage `json:"properties"`
}

type wireAsset struct {
	Src  string `json:"src,omitempty"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}

// MarshalJSON writes the front-end wire form. Stickers carry their reference
// under "url", images under "src".
func (e CanvasElement) MarshalJSON() ([]byte, error) {
	w := wireElement{ID: e.ID, Type: e.Kind, Pos: e.Position, Size: e.Size}
	var props any
	switch e.Kind {
	case KindText:
		if e.Text == nil {
			return nil, fmt.Errorf("element %s: text payload missing", e.ID)
		}
		props = e.Text
	case KindImage, KindSticker:
		if e.Asset == nil {
			return nil, fmt.Errorf("element %s: asset payload missing", e.ID)
		}
		a := wireAsset{Name: e.Asset.DisplayName}
		if e.Kind == KindSticker {
			a.URL = e.Asset.SourceRef
		} else {
			a.Src = e.Asset.SourceRef
		}
		props = a
	default:
		return nil, fmt.Errorf("element %s: unknown kind %q", e.ID, e.Kind)
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	w.Properties = raw
	return json.Marshal(w)
}

// UnmarshalJSON accepts the wire form; asset references may use "src" or "url".
func (e *CanvasElement) UnmarshalJSON(b []byte) error {
	var w wireElement
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := CanvasElement{ID: w.ID, Kind: w.Type, Position: w.Pos, Size: w.Size}
	switch w.Type {
	case KindText:
		var t TextProps
		if len(w.Properties) > 0 {
			if err := json.Unmarshal(w.Properties, &t); err != nil {
				return fmt.Errorf("element %s: text properties: %w", w.ID, err)
			}
		}
		out.Text = &t
	case KindImage, KindSticker:
		var a wireAsset
		if len(w.Properties) > 0 {
			if err := json.Unmarshal(w.Properties, &a); err != nil {
				return fmt.Errorf("element %s: asset properties: %w", w.ID, err)
			}
		}
		ref := a.Src
		if ref == "" {
			ref = a.URL
		}
		out.Asset = &AssetProps{SourceRef: ref, DisplayName: a.Name}
	default:
		return fmt.Errorf("element %s: unknown kind %q", w.ID, w.Type)
	}
	*e = out
	return nil
}

// Theme is a named export background with its default text color. When
// GradientTo is set the background is a diagonal gradient from Background.
type Theme struct {
	Name       string `json:"name"`
	Background string `json:"background"`
	GradientTo string `json:"gradientTo,omitempty"`
	TextColor  string `json:"textColor"`
}

// Sticker is a catalog entry that becomes a sticker element.
type Sticker struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
}

// VideoSpec fixes the output geometry and timing of an animation.
type VideoSpec struct {
	Width            int `json:"width"`
	Height           int `json:"height"`
	FPS              int `json:"fps"`
	DurationInFrames int `json:"durationInFrames"`
}

// Duration returns the playback length.
func (v VideoSpec) Duration() time.Duration {
	if v.FPS <= 0 {
		return 0
	}
	return time.Duration(v.DurationInFrames) * time.Second / time.Duration(v.FPS)
}

// FrameInterval returns the time between frames.
func (v VideoSpec) FrameInterval() time.Duration {
	if v.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(v.FPS)
}

// JobStatus is the lifecycle state of a server-side render.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// RenderJob is one row of render history.
type RenderJob struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Elements   int       `json:"elements"`
	Frames     int       `json:"frames"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}
