/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package animation computes the staggered entrance of canvas elements and
// turns it into frames: pure per-frame visual state, a rasterizer that feeds
// the video encoder, and a ticking preview player.
package animation

import (
	"github.com/tanema/gween/ease"

	"gocanvas/internal/domain"
)

// Entrance timing in frames. Element i starts at i·StaggerFrames and is fully
// visible EntranceFrames later.
const (
	StaggerFrames  = 10
	EntranceFrames = 30
)

// Start and end values of the entrance.
const (
	FromOpacity = 0.0
	ToOpacity   = 1.0
	FromScale   = 0.5
	ToScale     = 1.0
)

// DefaultVideo is shared by the preview player and the render server.
var DefaultVideo = domain.VideoSpec{Width: 1920, Height: 1080, FPS: 30, DurationInFrames: 150}

// Visual is the per-frame presentation of one element.
type Visual struct {
	ID      string
	Opacity float64
	Scale   float64
}

// Progress returns how far element index is through its entrance at frame,
// clamped to [0,1].
func Progress(index, frame int) float64 {
	start := index * StaggerFrames
	p := float64(frame-start) / EntranceFrames
	return min(1, max(0, p))
}

// Render returns one Visual per element in store order with linear easing.
func Render(elements []domain.CanvasElement, frame int) []Visual {
	return RenderWith(elements, frame, ease.Linear)
}

// RenderWith is Render with a custom easing curve.
func RenderWith(elements []domain.CanvasElement, frame int, fn ease.TweenFunc) []Visual {
	if fn == nil {
		fn = ease.Linear
	}
	out := make([]Visual, len(elements))
	for i, el := range elements {
		p := float32(Progress(i, frame))
		out[i] = Visual{
			ID:      el.ID,
			Opacity: float64(fn(p, FromOpacity, ToOpacity-FromOpacity, 1)),
			Scale:   float64(fn(p, FromScale, ToScale-FromScale, 1)),
		}
	}
	return out
}

// SettledFrame is the first frame at which every element is fully visible.
func SettledFrame(n int) int {
	if n <= 0 {
		return 0
	}
	return (n-1)*StaggerFrames + EntranceFrames
}
