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
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"gocanvas/internal/domain"
	"gocanvas/internal/scene"
	"gocanvas/internal/vector"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newController(t *testing.T, opts ...Option) (*Controller, *scene.Store) {
	t.Helper()
	s := scene.New()
	return New(s, opts...), s
}

// screenOf returns the on-screen top-left of an element.
func screenOf(c *Controller, el domain.CanvasElement) vector.Pt {
	return vector.ToScreen(vector.FromPoint(el.Position), vector.Pt{}, c.Zoom())
}

func TestDrag_EndToEndAtZoomOne(t *testing.T) {
	c, s := newController(t, WithZoom(1))
	el := c.AddText()
	c.Blur(false)
	start := screenOf(c, el).Add(vector.Pt{X: 5, Y: 5})
	if err := c.PointerDown(Hit{ID: el.ID}, start); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	if c.State() != Dragging || c.Active() != el.ID {
		t.Fatalf("expected dragging %s, got %v %q", el.ID, c.State(), c.Active())
	}
	c.PointerMove(start.Add(vector.Pt{X: 10, Y: 10}))
	c.PointerUp(start.Add(vector.Pt{X: 30, Y: 30}))
	got, _ := s.Get(el.ID)
	if got.Position != (domain.Point{X: 180, Y: 180}) {
		t.Fatalf("expected (180,180), got %+v", got.Position)
	}
	if c.State() != Idle || s.Selected() != el.ID {
		t.Fatalf("expected idle with selection kept, got %v sel=%q", c.State(), s.Selected())
	}
}

func TestDrag_DeltaScalesWithZoom(t *testing.T) {
	for _, z := range []float64{0.4, 0.5, 2} {
		c, s := newController(t, WithZoom(z))
		c.SetContainerOrigin(vector.Pt{X: 40, Y: 25})
		el := s.AddImage("a.png", "")
		start := vector.ToScreen(vector.FromPoint(el.Position), vector.Pt{X: 40, Y: 25}, z).Add(vector.Pt{X: 3, Y: 4})
		if err := c.PointerDown(Hit{ID: el.ID}, start); err != nil {
			t.Fatalf("pointer down: %v", err)
		}
		c.PointerUp(start.Add(vector.Pt{X: 20, Y: -10}))
		got, _ := s.Get(el.ID)
		if !near(got.Position.X, 200+20/z) || !near(got.Position.Y, 200-10/z) {
			t.Fatalf("zoom %v: unexpected position %+v", z, got.Position)
		}
	}
}

func TestResize_ClampsToKindFloor(t *testing.T) {
	c, s := newController(t, WithZoom(1))
	el := s.AddImage("a.png", "")
	start := vector.Pt{X: 300, Y: 300}
	if err := c.PointerDown(Hit{ID: el.ID, Edges: vector.EdgeRight | vector.EdgeBottom}, start); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	if c.State() != Resizing {
		t.Fatalf("expected resizing, got %v", c.State())
	}
	c.PointerUp(vector.Pt{X: 100, Y: 100})
	got, _ := s.Get(el.ID)
	if got.Size != (domain.Size{Width: 50, Height: 50}) || got.Position != el.Position {
		t.Fatalf("unexpected geometry after clamp: %+v %+v", got.Position, got.Size)
	}
}

func TestResize_LeftEdgeMovesPosition(t *testing.T) {
	c, s := newController(t, WithZoom(0.5))
	el := s.AddImage("a.png", "")
	if err := c.PointerDown(Hit{ID: el.ID, Edges: vector.EdgeLeft}, vector.Pt{X: 100, Y: 100}); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	c.PointerUp(vector.Pt{X: 90, Y: 100})
	got, _ := s.Get(el.ID)
	if got.Position.X != 180 || got.Size.Width != 120 {
		t.Fatalf("expected x=180 w=120, got %+v %+v", got.Position, got.Size)
	}
}

func TestGesturesAreMutuallyExclusive(t *testing.T) {
	c, s := newController(t)
	a := s.AddImage("a.png", "")
	b := s.AddImage("b.png", "")
	if err := c.PointerDown(Hit{ID: a.ID}, vector.Pt{}); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	if err := c.PointerDown(Hit{ID: b.ID}, vector.Pt{}); !errors.Is(err, ErrGestureActive) {
		t.Fatalf("expected ErrGestureActive, got %v", err)
	}
	if err := c.DoubleClick(b.ID); !errors.Is(err, ErrGestureActive) {
		t.Fatalf("expected ErrGestureActive on double click, got %v", err)
	}
	c.PointerUp(vector.Pt{})

	txt := c.AddText()
	if c.State() != Editing || c.Active() != txt.ID {
		t.Fatalf("adding text should enter editing, got %v", c.State())
	}
	if err := c.PointerDown(Hit{ID: a.ID}, vector.Pt{}); !errors.Is(err, ErrGestureActive) {
		t.Fatalf("expected ErrGestureActive while editing, got %v", err)
	}
}

func TestEditingTransitions(t *testing.T) {
	c, s := newController(t)
	txt := s.AddText()
	s.EndEdit()
	img := s.AddImage("a.png", "")

	if err := c.DoubleClick(img.ID); err != nil || c.State() != Idle || s.Selected() != img.ID {
		t.Fatalf("double click on image should only select: state=%v err=%v", c.State(), err)
	}
	if err := c.DoubleClick(txt.ID); err != nil || c.State() != Editing {
		t.Fatalf("double click on text should edit: state=%v err=%v", c.State(), err)
	}
	if s.Editing() != txt.ID || s.Selected() != txt.ID {
		t.Fatalf("editing implies selection")
	}
	c.Blur(true)
	if c.State() != Editing {
		t.Fatalf("blur inside editor must keep editing")
	}
	c.Key("Enter", true)
	if c.State() != Editing {
		t.Fatalf("modified Enter must keep editing")
	}
	c.Key("Enter", false)
	if c.State() != Idle || s.Editing() != "" {
		t.Fatalf("Enter should end editing")
	}
	_ = c.DoubleClick(txt.ID)
	c.Blur(false)
	if c.State() != Idle {
		t.Fatalf("blur outside should end editing")
	}
}

func TestStaleIDDuringGesture(t *testing.T) {
	c, s := newController(t)
	el := s.AddImage("a.png", "")
	if err := c.PointerDown(Hit{ID: "missing"}, vector.Pt{}); err != nil || c.State() != Idle {
		t.Fatalf("unknown id should be ignored: %v %v", err, c.State())
	}
	if err := c.PointerDown(Hit{ID: el.ID}, vector.Pt{}); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	s.Delete(el.ID)
	c.PointerMove(vector.Pt{X: 50, Y: 50})
	if s.Len() != 0 {
		t.Fatalf("move must not resurrect a deleted element")
	}
	c.PointerUp(vector.Pt{X: 60, Y: 60})
	if c.State() != Idle {
		t.Fatalf("gesture should still end, got %v", c.State())
	}
}

func TestZoomChangeMidGestureReanchors(t *testing.T) {
	c, s := newController(t, WithZoom(0.4))
	el := s.AddImage("a.png", "")
	start := screenOf(c, el).Add(vector.Pt{X: 10, Y: 10})
	if err := c.PointerDown(Hit{ID: el.ID}, start); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	mid := start.Add(vector.Pt{X: 40, Y: 0})
	c.PointerMove(mid)
	before, _ := s.Get(el.ID)
	if !near(before.Position.X, 300) {
		t.Fatalf("expected x=300 at zoom 0.4, got %v", before.Position.X)
	}

	if err := c.SetZoom(0.8); err != nil {
		t.Fatalf("set zoom: %v", err)
	}
	c.PointerMove(mid)
	same, _ := s.Get(el.ID)
	if !near(same.Position.X, before.Position.X) || !near(same.Position.Y, before.Position.Y) {
		t.Fatalf("zoom change must not jump the element: %+v vs %+v", same.Position, before.Position)
	}
	c.PointerUp(mid.Add(vector.Pt{X: 40, Y: 0}))
	after, _ := s.Get(el.ID)
	if !near(after.Position.X, 350) {
		t.Fatalf("delta after zoom should scale by 1/0.8, got x=%v", after.Position.X)
	}
}

func TestZoomStepsClampAndLock(t *testing.T) {
	c, _ := newController(t)
	if c.Zoom() != InitialZoom {
		t.Fatalf("expected initial zoom %v, got %v", InitialZoom, c.Zoom())
	}
	_ = c.ZoomIn()
	if !near(c.Zoom(), 0.42) {
		t.Fatalf("expected 0.42, got %v", c.Zoom())
	}
	_ = c.ZoomOut()
	if !near(c.Zoom(), 0.42*0.95) {
		t.Fatalf("expected %v, got %v", 0.42*0.95, c.Zoom())
	}
	_ = c.SetZoom(100)
	if c.Zoom() != MaxZoom {
		t.Fatalf("expected clamp to %v, got %v", MaxZoom, c.Zoom())
	}
	_ = c.SetZoom(-1)
	if c.Zoom() != MinZoom {
		t.Fatalf("expected clamp to %v, got %v", MinZoom, c.Zoom())
	}
	c.SetZoomLocked(true)
	if err := c.ZoomIn(); !errors.Is(err, ErrZoomLocked) {
		t.Fatalf("expected ErrZoomLocked, got %v", err)
	}
	if c.Zoom() != MinZoom {
		t.Fatalf("locked zoom must not change")
	}
}

type fakeRecognizer struct{ released *int }

func (f fakeRecognizer) Release() { *f.released++ }

func TestBind_ReleasesExactlyOnce(t *testing.T) {
	c, _ := newController(t)
	var zooms []float64
	released := 0
	factory := func(z float64) Recognizer {
		zooms = append(zooms, z)
		return fakeRecognizer{released: &released}
	}
	release := c.Bind(factory)
	if len(zooms) != 1 || zooms[0] != InitialZoom {
		t.Fatalf("expected acquire at initial zoom, got %v", zooms)
	}
	_ = c.SetZoom(1)
	if released != 1 || len(zooms) != 2 || zooms[1] != 1 {
		t.Fatalf("zoom change should release and reacquire: released=%d zooms=%v", released, zooms)
	}
	release() // stale handle from the first bind
	if released != 1 {
		t.Fatalf("stale release must be a no-op, released=%d", released)
	}
	second := c.Bind(factory)
	if released != 2 {
		t.Fatalf("rebinding releases the previous recognizer, released=%d", released)
	}
	second()
	second()
	c.Close()
	if released != 3 {
		t.Fatalf("expected exactly 3 releases, got %d", released)
	}
	if noop := New(scene.New()).Bind(nil); noop == nil {
		t.Fatalf("bind with nil factory must return a callable release")
	}
}

func TestCommands_SelectedOperations(t *testing.T) {
	c, s := newController(t)
	if c.DeleteSelected() {
		t.Fatalf("nothing selected")
	}
	txt := c.AddText()
	if !c.SetText("Hello") || !c.SetFontSize(0) || !c.SetColor("#ff0000") {
		t.Fatalf("text edits should apply to the edited element")
	}
	got, _ := s.Get(txt.ID)
	if got.Text.Content != "Hello" || got.Text.FontSize != 20 || got.Text.Color != "#ff0000" {
		t.Fatalf("unexpected payload %+v", got.Text)
	}
	dup, ok := c.DuplicateSelected()
	if !ok || c.State() != Idle || s.Selected() != dup.ID {
		t.Fatalf("duplicate should select the copy and leave editing")
	}
	img := c.AddImage("a.png", "")
	s.Select(img.ID)
	if c.SetText("x") {
		t.Fatalf("text edits must not apply to images")
	}
	if !c.DeleteSelected() || s.Len() != 2 {
		t.Fatalf("expected image deleted, len=%d", s.Len())
	}
	c.AddSticker(domain.Sticker{Name: "Sun", URL: "u"})
	c.Clear()
	if s.Len() != 0 || c.State() != Idle {
		t.Fatalf("clear should empty the canvas")
	}
}

type fakeExporter struct{ n int }

func (f *fakeExporter) ExportPDF(_ context.Context, els []domain.CanvasElement, w io.Writer) error {
	f.n = len(els)
	_, err := io.WriteString(w, "%PDF")
	return err
}

type fakeRenderer struct{}

func (fakeRenderer) RenderVideo(_ context.Context, els []domain.CanvasElement) ([]byte, error) {
	return []byte(strings.Repeat("v", len(els))), nil
}

func TestExportAndRenderDelegate(t *testing.T) {
	c, _ := newController(t)
	var sb strings.Builder
	if err := c.ExportPDF(context.Background(), &sb); !errors.Is(err, ErrNoExporter) {
		t.Fatalf("expected ErrNoExporter, got %v", err)
	}
	if _, err := c.RenderVideo(context.Background()); !errors.Is(err, ErrNoRenderer) {
		t.Fatalf("expected ErrNoRenderer, got %v", err)
	}

	ex := &fakeExporter{}
	c, s := newController(t, WithExporter(ex), WithRenderer(fakeRenderer{}))
	s.AddImage("a.png", "")
	s.AddImage("b.png", "")
	if err := c.ExportPDF(context.Background(), &sb); err != nil || ex.n != 2 || sb.String() != "%PDF" {
		t.Fatalf("export: err=%v n=%d out=%q", err, ex.n, sb.String())
	}
	out, err := c.RenderVideo(context.Background())
	if err != nil || string(out) != "vv" {
		t.Fatalf("render: %q %v", out, err)
	}
}

func TestSnapping_ToCanvasEdge(t *testing.T) {
	c, s := newController(t, WithZoom(1), WithSnapping(vector.SnapOptions{Threshold: 6, SnapToEdges: true}))
	el := s.AddImage("a.png", "")
	start := vector.Pt{X: 210, Y: 210}
	if err := c.PointerDown(Hit{ID: el.ID}, start); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	// move to x=3 which is within 6 of the canvas left edge
	c.PointerMove(vector.Pt{X: 13, Y: 410})
	if len(c.Guides()) == 0 {
		t.Fatalf("expected a guide while snapping")
	}
	c.PointerUp(vector.Pt{X: 13, Y: 410})
	got, _ := s.Get(el.ID)
	if got.Position.X != 0 || got.Position.Y != 400 {
		t.Fatalf("expected snap to x=0, got %+v", got.Position)
	}
	if c.Guides() != nil {
		t.Fatalf("guides should clear after the gesture")
	}
}

func TestSnapping_ToggledOffMovesExactly(t *testing.T) {
	c, s := newController(t, WithZoom(1), WithSnapping(vector.SnapOptions{Threshold: 6, SnapToEdges: true}))
	c.SetSnapping(false)
	if c.Snapping() {
		t.Fatalf("expected snapping off")
	}
	el := s.AddImage("a.png", "")
	start := vector.Pt{X: 210, Y: 210}
	if err := c.PointerDown(Hit{ID: el.ID}, start); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	c.PointerUp(vector.Pt{X: 13, Y: 410})
	got, _ := s.Get(el.ID)
	if got.Position.X != 3 || got.Position.Y != 400 {
		t.Fatalf("expected exact move to (3,400), got %+v", got.Position)
	}
	if len(c.Guides()) != 0 {
		t.Fatalf("no guides expected with snapping off")
	}
}

func TestAddTextDuringDragCommitsGesture(t *testing.T) {
	for _, edges := range []vector.Edges{0, vector.EdgeRight} {
		c, s := newController(t, WithZoom(1))
		img := s.AddImage("a.png", "")
		if err := c.PointerDown(Hit{ID: img.ID, Edges: edges}, vector.Pt{X: 210, Y: 210}); err != nil {
			t.Fatalf("pointer down: %v", err)
		}
		c.PointerMove(vector.Pt{X: 230, Y: 220})

		txt := c.AddText()
		if c.State() != Editing || c.Active() != txt.ID || s.Editing() != txt.ID {
			t.Fatalf("edges %v: controller %v/%q out of step with store editing %q", edges, c.State(), c.Active(), s.Editing())
		}
		moved, _ := s.Get(img.ID)
		if moved.Position == img.Position && moved.Size == img.Size {
			t.Fatalf("edges %v: gesture should be committed before adding text", edges)
		}

		// the stray pointer-up of the old gesture changes nothing
		c.PointerUp(vector.Pt{X: 400, Y: 400})
		if after, _ := s.Get(img.ID); after.Position != moved.Position || after.Size != moved.Size {
			t.Fatalf("edges %v: late pointer up moved the element: %+v", edges, after)
		}
		c.Key("Enter", false)
		if c.State() != Idle || s.Editing() != "" {
			t.Fatalf("edges %v: Enter should end the edit, got %v editing=%q", edges, c.State(), s.Editing())
		}
	}
}

func TestWithMeasurerAutoFitsText(t *testing.T) {
	c, s := newController(t, WithMeasurer(measureFunc(func(p domain.TextProps, zoom float64) domain.Size {
		return domain.Size{Width: float64(len(p.Content)) * 10 / zoom * 0.4, Height: 30}
	})))
	txt := c.AddText()
	c.SetText("abcdefghij")
	got, _ := s.Get(txt.ID)
	if got.Size.Width != 100 || got.Size.Height != 30 {
		t.Fatalf("expected auto-fit 100x30, got %+v", got.Size)
	}
}

type measureFunc func(p domain.TextProps, zoom float64) domain.Size

func (f measureFunc) MeasureText(p domain.TextProps, zoom float64) domain.Size { return f(p, zoom) }
