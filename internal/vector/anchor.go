/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package vector

// Gesture anchors. An anchor is captured when a drag or resize starts and
// turns later pointer positions (screen pixels) into canvas-space geometry.

// Edges is a bit set of element edges grabbed by a resize handle.
type Edges uint8

const (
	EdgeLeft Edges = 1 << iota
	EdgeRight
	EdgeTop
	EdgeBottom
)

func (e Edges) Has(o Edges) bool { return e&o != 0 }

// Anchor is the state captured at gesture start.
type Anchor struct {
	Origin       Pt // container origin on screen
	Zoom         float64
	Offset       Pt // pointer offset inside the element, canvas units
	StartPointer Pt
	StartPos     Pt
	StartSize    Size
}

// CaptureAnchor records the pointer offset from the element's on-screen
// origin (origin + pos·zoom), divided by zoom.
func CaptureAnchor(pointer, origin Pt, zoom float64, pos Pt, size Size) Anchor {
	if zoom <= 0 {
		zoom = 1
	}
	screen := origin.Add(pos.Scale(zoom))
	return Anchor{
		Origin:       origin,
		Zoom:         zoom,
		Offset:       pointer.Sub(screen).Scale(1 / zoom),
		StartPointer: pointer,
		StartPos:     pos,
		StartSize:    size,
	}
}

// MoveTo returns the element position that keeps the grabbed point under pointer.
func (a Anchor) MoveTo(pointer Pt) Pt {
	return pointer.Sub(a.Origin).Sub(a.Offset.Scale(a.Zoom)).Scale(1 / a.Zoom)
}

// Resize applies the pointer delta since capture to the grabbed edges. Left
// and top edges move the position and shrink the size, right and bottom
// edges grow it. The size is floored to minSize; a clamped left or top edge
// keeps the opposite edge where it started.
func (a Anchor) Resize(edges Edges, pointer Pt, minSize Size) (Pt, Size) {
	d := pointer.Sub(a.StartPointer).Scale(1 / a.Zoom)
	pos, size := a.StartPos, a.StartSize
	if edges.Has(EdgeLeft) {
		pos.X += d.X
		size.W -= d.X
	}
	if edges.Has(EdgeRight) {
		size.W += d.X
	}
	if edges.Has(EdgeTop) {
		pos.Y += d.Y
		size.H -= d.Y
	}
	if edges.Has(EdgeBottom) {
		size.H += d.Y
	}
	if size.W < minSize.W {
		if edges.Has(EdgeLeft) {
			pos.X = a.StartPos.X + a.StartSize.W - minSize.W
		}
		size.W = minSize.W
	}
	if size.H < minSize.H {
		if edges.Has(EdgeTop) {
			pos.Y = a.StartPos.Y + a.StartSize.H - minSize.H
		}
		size.H = minSize.H
	}
	return pos, size
}

// Rebase re-captures the anchor under a new zoom or container origin from
// the last pointer position and the element's current geometry.
func (a Anchor) Rebase(pointer, origin Pt, zoom float64, pos Pt, size Size) Anchor {
	return CaptureAnchor(pointer, origin, zoom, pos, size)
}
