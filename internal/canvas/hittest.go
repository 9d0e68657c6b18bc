/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"math"

	"gocanvas/internal/vector"
)

// HandleSize is the screen-pixel width of the resize band around the
// selected element.
const HandleSize = 8.0

// HitTest returns the topmost element under a screen point. Resize edges are
// reported only for the selected element.
func (c *Controller) HitTest(screen vector.Pt) (Hit, bool) {
	p := vector.ToCanvas(screen, c.origin, c.zoom)
	half := HandleSize / 2 / c.zoom
	sel := c.store.Selected()
	order := c.store.PaintOrder()
	for i := len(order) - 1; i >= 0; i-- {
		el := order[i]
		r := vector.FromRect(el.Bounds())
		if el.ID == sel {
			if e := edgesAt(r, p, half); e != 0 {
				return Hit{ID: el.ID, Edges: e}, true
			}
		}
		if r.Contains(p) {
			return Hit{ID: el.ID}, true
		}
	}
	return Hit{}, false
}

func edgesAt(r vector.Rect, p vector.Pt, half float64) vector.Edges {
	if !r.Inset(-half, -half).Contains(p) {
		return 0
	}
	var e vector.Edges
	switch {
	case math.Abs(p.X-r.X) <= half:
		e |= vector.EdgeLeft
	case math.Abs(p.X-(r.X+r.W)) <= half:
		e |= vector.EdgeRight
	}
	switch {
	case math.Abs(p.Y-r.Y) <= half:
		e |= vector.EdgeTop
	case math.Abs(p.Y-(r.Y+r.H)) <= half:
		e |= vector.EdgeBottom
	}
	return e
}
