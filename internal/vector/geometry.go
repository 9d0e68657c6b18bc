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

// Canvas-space geometry and the canvas-to-screen view transform.
// All values are float64 canvas units unless noted.

import (
	"math"

	"gocanvas/internal/domain"
)

// Pt is a 2D point.
type Pt struct{ X, Y float64 }

// Size is a width/height pair.
type Size struct{ W, H float64 }

// Rect is an axis-aligned rectangle defined by min corner and size.
type Rect struct {
	X, Y float64
	W, H float64
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

func (p Pt) Add(o Pt) Pt           { return Pt{p.X + o.X, p.Y + o.Y} }
func (p Pt) Sub(o Pt) Pt           { return Pt{p.X - o.X, p.Y - o.Y} }
func (p Pt) Scale(f float64) Pt    { return Pt{p.X * f, p.Y * f} }
func (p Pt) Point() domain.Point   { return domain.Point{X: p.X, Y: p.Y} }
func FromPoint(p domain.Point) Pt  { return Pt{p.X, p.Y} }
func (s Size) Domain() domain.Size { return domain.Size{Width: s.W, Height: s.H} }
func FromSize(s domain.Size) Size  { return Size{s.Width, s.Height} }
func FromRect(r domain.Rect) Rect  { return Rect{X: r.X, Y: r.Y, W: r.Width, H: r.Height} }
func (r Rect) Min() Pt             { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt             { return Pt{r.X + r.W, r.Y + r.H} }
func (r Rect) Center() Pt          { return Pt{r.X + r.W/2, r.Y + r.H/2} }
func (r Rect) Size() Size          { return Size{r.W, r.H} }
func (r Rect) Translate(d Pt) Rect { return Rect{X: r.X + d.X, Y: r.Y + d.Y, W: r.W, H: r.H} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Inset returns a rectangle inset by dx,dy on all sides (negative grows).
func (r Rect) Inset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W - 2*dx, H: r.H - 2*dy}
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	minX := min(r.X, o.X)
	minY := min(r.Y, o.Y)
	maxX := max(r.X+r.W, o.X+o.W)
	maxY := max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// ScaleAbout scales r by f around its center.
func (r Rect) ScaleAbout(f float64) Rect {
	c := r.Center()
	w, h := r.W*f, r.H*f
	return Rect{X: c.X - w/2, Y: c.Y - h/2, W: w, H: h}
}

// Affine2D represents a 2D affine transform as matrix:
// | a c e |
// | b d f |
// | 0 0 1 |
// stored as [a b c d e f].
type Affine2D struct{ A, B, C, D, E, F float64 }

var Identity = Affine2D{A: 1, D: 1}

func (m Affine2D) Mul(n Affine2D) Affine2D {
	return Affine2D{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

func (m Affine2D) Apply(p Pt) Pt {
	return Pt{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

func Translate(tx, ty float64) Affine2D { return Affine2D{A: 1, D: 1, E: tx, F: ty} }
func Scale(sx, sy float64) Affine2D     { return Affine2D{A: sx, D: sy} }

// View maps canvas space to screen space for a container at origin shown at zoom.
func View(origin Pt, zoom float64) Affine2D {
	return Translate(origin.X, origin.Y).Mul(Scale(zoom, zoom))
}

// ToScreen maps a canvas point to the screen.
func ToScreen(p, origin Pt, zoom float64) Pt { return View(origin, zoom).Apply(p) }

// ToCanvas maps a screen point back to canvas space. zoom must be positive.
func ToCanvas(p, origin Pt, zoom float64) Pt {
	return Pt{(p.X - origin.X) / zoom, (p.Y - origin.Y) / zoom}
}

// FloatRound rounds v to n decimal places deterministically.
func FloatRound(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
