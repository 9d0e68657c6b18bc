/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package canvas binds pointer and keyboard input to the element store. The
// Controller is a gesture state machine driven from the UI goroutine: its
// input methods never block and never start goroutines.
package canvas

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
	"gocanvas/internal/scene"
	"gocanvas/internal/vector"
)

// State is the current gesture.
type State int

const (
	Idle State = iota
	Dragging
	Resizing
	Editing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	case Editing:
		return "editing"
	}
	return "unknown"
}

var (
	ErrGestureActive = errors.New("canvas: another gesture is active")
	ErrZoomLocked    = errors.New("canvas: zoom is locked")
	ErrNoExporter    = errors.New("canvas: no exporter configured")
	ErrNoRenderer    = errors.New("canvas: no renderer configured")
)

// Zoom limits and steps.
const (
	InitialZoom   = 0.4
	ZoomInFactor  = 1.05
	ZoomOutFactor = 0.95
	MinZoom       = 0.05
	MaxZoom       = 8.0
)

// ClampZoom bounds z to [MinZoom, MaxZoom]; NaN and non-positive values map to MinZoom.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) || z <= 0 {
		return MinZoom
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// Hit is what a pointer-down landed on. Zero Edges means the element body.
type Hit struct {
	ID    string
	Edges vector.Edges
}

// Exporter writes a static document for a scene snapshot.
type Exporter interface {
	ExportPDF(ctx context.Context, elements []domain.CanvasElement, w io.Writer) error
}

// Renderer turns a scene snapshot into an encoded video.
type Renderer interface {
	RenderVideo(ctx context.Context, elements []domain.CanvasElement) ([]byte, error)
}

// Recognizer is a gesture recognizer bound to the canvas surface for one zoom level.
type Recognizer interface {
	Release()
}

// RecognizerFactory builds a recognizer for the given zoom.
type RecognizerFactory func(zoom float64) Recognizer

// Commands is the toolbar-facing surface of the editor.
type Commands interface {
	AddText() domain.CanvasElement
	AddImage(sourceRef, displayName string) domain.CanvasElement
	AddSticker(s domain.Sticker) domain.CanvasElement
	DeleteSelected() bool
	DuplicateSelected() (domain.CanvasElement, bool)
	Clear()
	SetText(content string) bool
	SetFontSize(size float64) bool
	SetColor(color string) bool
	Snapshot() []domain.CanvasElement
	ExportPDF(ctx context.Context, w io.Writer) error
	RenderVideo(ctx context.Context) ([]byte, error)
}

var _ Commands = (*Controller)(nil)

// Controller is not safe for concurrent use except for Snapshot, ExportPDF
// and RenderVideo, which only read the store.
type Controller struct {
	store    *scene.Store
	exporter Exporter
	renderer Renderer
	log      *slog.Logger

	zoom   float64
	locked bool
	origin vector.Pt
	bounds vector.Rect

	state  State
	active string
	kind   domain.Kind
	edges  vector.Edges
	anchor vector.Anchor
	last   vector.Pt

	snap     vector.SnapOptions
	snapping bool
	guides   []vector.GuideLine

	factory RecognizerFactory
	release func()
}

// Option configures a Controller.
type Option func(*Controller)

func WithExporter(e Exporter) Option { return func(c *Controller) { c.exporter = e } }
func WithRenderer(r Renderer) Option { return func(c *Controller) { c.renderer = r } }
func WithZoom(z float64) Option      { return func(c *Controller) { c.zoom = ClampZoom(z) } }
func WithZoomLocked(l bool) Option   { return func(c *Controller) { c.locked = l } }

// WithCanvasSize sets the canvas bounds used as a snapping target.
func WithCanvasSize(w, h float64) Option {
	return func(c *Controller) { c.bounds = vector.R(0, 0, w, h) }
}

// WithSnapping enables snapping of dragged elements. The threshold is in
// screen pixels and converted to canvas units at the current zoom.
func WithSnapping(opts vector.SnapOptions) Option {
	return func(c *Controller) { c.snap, c.snapping = opts, true }
}

// WithMeasurer makes text edits auto-fit the element box.
func WithMeasurer(m scene.Measurer) Option {
	return func(c *Controller) { c.store.SetMeasurer(m, c.Zoom) }
}

// New returns a controller over store.
func New(store *scene.Store, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		log:    applog.WithComponent("canvas"),
		zoom:   InitialZoom,
		bounds: vector.R(0, 0, 1800, 1600),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Store() *scene.Store { return c.store }
func (c *Controller) State() State        { return c.state }
func (c *Controller) Zoom() float64       { return c.zoom }
func (c *Controller) ZoomLocked() bool    { return c.locked }

// Active returns the element occupied by the current gesture, or "".
func (c *Controller) Active() string { return c.active }

// SetSnapping turns snapping on or off. Options come from WithSnapping.
func (c *Controller) SetSnapping(on bool) {
	c.snapping = on
	if !on {
		c.guides = nil
	}
}

func (c *Controller) Snapping() bool { return c.snapping }

// Guides returns the snapping guides of the current drag.
func (c *Controller) Guides() []vector.GuideLine { return c.guides }

// PointerDown starts a drag on the element body or a resize on a handle.
// Stale ids are ignored.
func (c *Controller) PointerDown(hit Hit, pointer vector.Pt) error {
	if c.state != Idle {
		return ErrGestureActive
	}
	el, ok := c.store.Get(hit.ID)
	if !ok {
		return nil
	}
	c.active, c.kind, c.edges = el.ID, el.Kind, hit.Edges
	c.anchor = vector.CaptureAnchor(pointer, c.origin, c.zoom, vector.FromPoint(el.Position), vector.FromSize(el.Size))
	c.last = pointer
	if hit.Edges == 0 {
		c.state = Dragging
	} else {
		c.state = Resizing
	}
	c.store.Select(el.ID)
	c.log.Debug("gesture start", slog.String("state", c.state.String()), slog.String("id", el.ID))
	return nil
}

// PointerMove updates the active element. Moves for a deleted element are no-ops.
func (c *Controller) PointerMove(pointer vector.Pt) {
	c.last = pointer
	switch c.state {
	case Dragging:
		pos := c.anchor.MoveTo(pointer)
		pos = c.snapPosition(pos)
		p := pos.Point()
		c.store.Update(c.active, scene.Patch{Position: &p})
	case Resizing:
		pos, size := c.anchor.Resize(c.edges, pointer, vector.FromSize(domain.MinSize(c.kind)))
		p, s := pos.Point(), size.Domain()
		c.store.Update(c.active, scene.Patch{Position: &p, Size: &s})
	}
}

// PointerUp commits the final geometry and returns to Idle.
func (c *Controller) PointerUp(pointer vector.Pt) {
	if c.state != Dragging && c.state != Resizing {
		return
	}
	c.PointerMove(pointer)
	c.log.Debug("gesture end", slog.String("state", c.state.String()), slog.String("id", c.active))
	c.reset()
}

func (c *Controller) reset() {
	c.state = Idle
	c.active, c.kind, c.edges = "", "", 0
	c.guides = nil
}

func (c *Controller) snapPosition(pos vector.Pt) vector.Pt {
	c.guides = nil
	if !c.snapping || c.snap.Threshold <= 0 {
		return pos
	}
	el, ok := c.store.Get(c.active)
	if !ok {
		return pos
	}
	targets := []vector.Target{{Rect: c.bounds, Weight: 1}}
	for _, other := range c.store.List() {
		if other.ID != c.active {
			targets = append(targets, vector.Target{Rect: vector.FromRect(other.Bounds()), Weight: 1})
		}
	}
	opts := c.snap
	opts.Threshold = c.snap.Threshold / c.zoom
	moving := vector.Rect{X: pos.X, Y: pos.Y, W: el.Size.Width, H: el.Size.Height}
	snapped, guides := vector.ComputeSmartGuides(moving, targets, opts)
	c.guides = guides
	return snapped.Min()
}

// DoubleClick enters editing on a text element. Other kinds are only selected.
func (c *Controller) DoubleClick(id string) error {
	if c.state == Editing && c.active == id {
		return nil
	}
	if c.state != Idle {
		return ErrGestureActive
	}
	el, ok := c.store.Get(id)
	if !ok {
		return nil
	}
	if el.Kind != domain.KindText {
		c.store.Select(id)
		return nil
	}
	c.beginEdit(id)
	return nil
}

func (c *Controller) beginEdit(id string) {
	if c.store.BeginEdit(id) {
		c.state, c.active, c.kind = Editing, id, domain.KindText
	}
}

// Blur ends editing when focus moves outside the editor chrome.
func (c *Controller) Blur(insideEditor bool) {
	if c.state == Editing && !insideEditor {
		c.endEdit()
	}
}

// Key handles a key press inside the inline editor. Enter without a
// modifier commits; with a modifier it is part of the content.
func (c *Controller) Key(key string, modifier bool) {
	if c.state == Editing && key == "Enter" && !modifier {
		c.endEdit()
	}
}

func (c *Controller) endEdit() {
	c.store.EndEdit()
	c.reset()
}

// SetContainerOrigin records the screen origin of the canvas container. A
// gesture in progress is re-anchored so the element stays under the pointer.
func (c *Controller) SetContainerOrigin(origin vector.Pt) {
	if origin == c.origin {
		return
	}
	c.origin = origin
	c.rebase()
}

// SetZoom changes the view zoom. A gesture in progress is re-anchored from
// the last pointer position and the element's current geometry, and the
// bound recognizer is replaced.
func (c *Controller) SetZoom(z float64) error {
	if c.locked {
		return ErrZoomLocked
	}
	z = ClampZoom(z)
	if z == c.zoom {
		return nil
	}
	c.zoom = z
	c.rebase()
	c.rebind()
	return nil
}

func (c *Controller) ZoomIn() error  { return c.SetZoom(c.zoom * ZoomInFactor) }
func (c *Controller) ZoomOut() error { return c.SetZoom(c.zoom * ZoomOutFactor) }

// SetZoomLocked toggles the zoom lock.
func (c *Controller) SetZoomLocked(locked bool) { c.locked = locked }

func (c *Controller) rebase() {
	if c.state != Dragging && c.state != Resizing {
		return
	}
	el, ok := c.store.Get(c.active)
	if !ok {
		return
	}
	c.anchor = c.anchor.Rebase(c.last, c.origin, c.zoom, vector.FromPoint(el.Position), vector.FromSize(el.Size))
}

// Bind acquires a recognizer from factory, releasing any previous one. The
// returned func releases it; calling it more than once is safe.
func (c *Controller) Bind(factory RecognizerFactory) (release func()) {
	c.releaseRecognizer()
	c.factory = factory
	c.acquire()
	if c.release == nil {
		return func() {}
	}
	return c.release
}

func (c *Controller) acquire() {
	if c.factory == nil {
		return
	}
	r := c.factory(c.zoom)
	var once sync.Once
	c.release = func() {
		once.Do(func() {
			if r != nil {
				r.Release()
			}
		})
	}
}

func (c *Controller) rebind() {
	if c.factory == nil {
		return
	}
	c.releaseRecognizer()
	c.acquire()
}

func (c *Controller) releaseRecognizer() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

// Close releases the bound recognizer.
func (c *Controller) Close() {
	c.releaseRecognizer()
	c.factory = nil
}

// AddText adds a text element and enters editing on it. An active drag or
// resize is committed first.
func (c *Controller) AddText() domain.CanvasElement {
	c.settle()
	el := c.store.AddText()
	c.state, c.active, c.kind = Editing, el.ID, domain.KindText
	return el
}

func (c *Controller) AddImage(sourceRef, displayName string) domain.CanvasElement {
	return c.store.AddImage(sourceRef, displayName)
}

// AddSticker adds and selects a sticker, leaving any inline edit.
func (c *Controller) AddSticker(s domain.Sticker) domain.CanvasElement {
	c.settle()
	if c.state == Editing {
		c.reset()
	}
	return c.store.AddSticker(s)
}

// settle ends a drag or resize at the last pointer position.
func (c *Controller) settle() {
	if c.state == Dragging || c.state == Resizing {
		c.PointerUp(c.last)
	}
}

// target is the edited element, else the selected one.
func (c *Controller) target() string {
	if id := c.store.Editing(); id != "" {
		return id
	}
	return c.store.Selected()
}

// DeleteSelected removes the edited or selected element.
func (c *Controller) DeleteSelected() bool {
	id := c.target()
	if id == "" {
		return false
	}
	if id == c.active {
		c.reset()
	}
	c.store.Delete(id)
	return true
}

// DuplicateSelected copies the selected element and selects the copy.
func (c *Controller) DuplicateSelected() (domain.CanvasElement, bool) {
	id := c.store.Selected()
	if id == "" {
		return domain.CanvasElement{}, false
	}
	el, ok := c.store.Duplicate(id)
	if ok && c.state == Editing {
		c.reset()
	}
	return el, ok
}

// Clear empties the canvas and abandons any gesture.
func (c *Controller) Clear() {
	c.reset()
	c.store.Clear()
}

func (c *Controller) patchText(p scene.Patch) bool {
	id := c.target()
	if id == "" {
		return false
	}
	if el, ok := c.store.Get(id); !ok || el.Kind != domain.KindText {
		return false
	}
	return c.store.Update(id, p)
}

func (c *Controller) SetText(content string) bool   { return c.patchText(scene.Patch{Content: &content}) }
func (c *Controller) SetFontSize(size float64) bool { return c.patchText(scene.Patch{FontSize: &size}) }
func (c *Controller) SetColor(color string) bool    { return c.patchText(scene.Patch{Color: &color}) }

// SetFontFamily changes the family of the edited or selected text.
func (c *Controller) SetFontFamily(family string) bool {
	return c.patchText(scene.Patch{FontFamily: &family})
}

// Snapshot returns the elements in store order.
func (c *Controller) Snapshot() []domain.CanvasElement { return c.store.List() }

// ExportPDF writes the current scene through the configured exporter.
func (c *Controller) ExportPDF(ctx context.Context, w io.Writer) error {
	if c.exporter == nil {
		return ErrNoExporter
	}
	return c.exporter.ExportPDF(ctx, c.Snapshot(), w)
}

// RenderVideo sends the current scene to the configured renderer.
func (c *Controller) RenderVideo(ctx context.Context) ([]byte, error) {
	if c.renderer == nil {
		return nil, ErrNoRenderer
	}
	return c.renderer.RenderVideo(ctx, c.Snapshot())
}
