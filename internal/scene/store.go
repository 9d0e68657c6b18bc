/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package scene holds the canonical element collection of the editor and the
// transient selection/editing state. Every mutation publishes a new slice, so
// a slice returned by List is never modified afterwards.
package scene

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"gocanvas/internal/domain"
)

// Creation defaults.
var (
	DefaultTextPos     = domain.Point{X: 150, Y: 150}
	DefaultTextSize    = domain.Size{Width: 100, Height: 50}
	DefaultImagePos    = domain.Point{X: 200, Y: 200}
	DefaultImageSize   = domain.Size{Width: 100, Height: 100}
	DefaultStickerPos  = domain.Point{X: 150, Y: 150}
	DefaultStickerSize = domain.Size{Width: 100, Height: 100}
	DuplicateOffset    = domain.Point{X: 20, Y: 20}
)

const (
	DefaultText       = "New Text"
	DefaultTextColor  = "#000000"
	DefaultFontFamily = "Arial"
)

// Measurer fits a text element's box to its content.
type Measurer interface {
	MeasureText(p domain.TextProps, zoom float64) domain.Size
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Position   *domain.Point
	Size       *domain.Size
	Content    *string
	FontSize   *float64
	Color      *string
	FontFamily *string
}

func (p Patch) touchesText() bool {
	return p.Content != nil || p.FontSize != nil || p.FontFamily != nil
}

// NewID returns a time-ordered UUID, falling back to a random one.
func NewID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	elements []domain.CanvasElement
	selected string
	editing  string

	newID    func() string
	measurer Measurer
	zoom     func() float64
	watchers []func()
}

// Option configures a Store.
type Option func(*Store)

// WithIDFunc replaces the id generator.
func WithIDFunc(fn func() string) Option { return func(s *Store) { s.newID = fn } }

// WithMeasurer attaches text measurement. zoom reports the current view zoom.
func WithMeasurer(m Measurer, zoom func() float64) Option {
	return func(s *Store) { s.measurer, s.zoom = m, zoom }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{newID: NewID}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetMeasurer attaches or replaces the text measurer after construction.
func (s *Store) SetMeasurer(m Measurer, zoom func() float64) {
	s.mu.Lock()
	s.measurer, s.zoom = m, zoom
	s.mu.Unlock()
}

// OnChange registers fn to run after every mutation, outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	ws := append([]func(){}, s.watchers...)
	s.mu.RUnlock()
	for _, fn := range ws {
		fn()
	}
}

// publish appends el under the lock held by the caller.
func (s *Store) publish(el domain.CanvasElement) {
	next := make([]domain.CanvasElement, len(s.elements), len(s.elements)+1)
	copy(next, s.elements)
	s.elements = append(next, el)
}

// AddText appends a default text element, selects it and enters editing.
func (s *Store) AddText() domain.CanvasElement {
	s.mu.Lock()
	el := domain.CanvasElement{
		ID:       s.newID(),
		Kind:     domain.KindText,
		Position: DefaultTextPos,
		Size:     DefaultTextSize,
		Text: &domain.TextProps{
			Content:    DefaultText,
			FontSize:   domain.DefaultFontSize,
			Color:      DefaultTextColor,
			FontFamily: DefaultFontFamily,
		},
	}
	s.publish(el)
	s.selected, s.editing = el.ID, el.ID
	s.mu.Unlock()
	s.notify()
	return el.Clone()
}

// AddImage appends an image element for sourceRef.
func (s *Store) AddImage(sourceRef, displayName string) domain.CanvasElement {
	s.mu.Lock()
	el := domain.CanvasElement{
		ID:       s.newID(),
		Kind:     domain.KindImage,
		Position: DefaultImagePos,
		Size:     DefaultImageSize,
		Asset:    &domain.AssetProps{SourceRef: sourceRef, DisplayName: displayName},
	}
	s.publish(el)
	s.mu.Unlock()
	s.notify()
	return el.Clone()
}

// AddSticker appends a sticker element and selects it.
func (s *Store) AddSticker(st domain.Sticker) domain.CanvasElement {
	s.mu.Lock()
	el := domain.CanvasElement{
		ID:       s.newID(),
		Kind:     domain.KindSticker,
		Position: DefaultStickerPos,
		Size:     DefaultStickerSize,
		Asset:    &domain.AssetProps{SourceRef: st.URL, DisplayName: st.Name},
	}
	s.publish(el)
	s.selected, s.editing = el.ID, ""
	s.mu.Unlock()
	s.notify()
	return el.Clone()
}

// Update applies p to the element with id. Unknown ids are ignored.
// It reports whether an element was replaced.
func (s *Store) Update(id string, p Patch) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	el := s.elements[idx].Clone()
	if p.Position != nil {
		el.Position = *p.Position
	}
	if p.Size != nil {
		el.Size = *p.Size
	}
	if el.Text != nil {
		if p.Content != nil {
			el.Text.Content = *p.Content
		}
		if p.FontSize != nil {
			el.Text.FontSize = domain.ClampFontSize(*p.FontSize)
		}
		if p.Color != nil {
			el.Text.Color = *p.Color
		}
		if p.FontFamily != nil {
			el.Text.FontFamily = *p.FontFamily
		}
		if p.touchesText() && s.measurer != nil {
			zoom := 1.0
			if s.zoom != nil {
				zoom = s.zoom()
			}
			el.Size = s.measurer.MeasureText(*el.Text, zoom)
		}
	}
	el.Size = domain.ClampSize(el.Kind, el.Size)

	next := make([]domain.CanvasElement, len(s.elements))
	copy(next, s.elements)
	next[idx] = el
	s.elements = next
	s.mu.Unlock()
	s.notify()
	return true
}

// Delete removes id and clears selection/editing that pointed at it.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	next := make([]domain.CanvasElement, 0, len(s.elements)-1)
	next = append(next, s.elements[:idx]...)
	next = append(next, s.elements[idx+1:]...)
	s.elements = next
	if s.selected == id {
		s.selected = ""
	}
	if s.editing == id {
		s.editing = ""
	}
	s.mu.Unlock()
	s.notify()
}

// Duplicate appends a copy of id with a new id, offset by DuplicateOffset,
// and selects the copy.
func (s *Store) Duplicate(id string) (domain.CanvasElement, bool) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.CanvasElement{}, false
	}
	el := s.elements[idx].Clone()
	el.ID = s.newID()
	el.Position.X += DuplicateOffset.X
	el.Position.Y += DuplicateOffset.Y
	s.publish(el)
	s.selected, s.editing = el.ID, ""
	s.mu.Unlock()
	s.notify()
	return el.Clone(), true
}

// Clear removes all elements and resets selection and editing.
func (s *Store) Clear() {
	s.mu.Lock()
	s.elements = nil
	s.selected, s.editing = "", ""
	s.mu.Unlock()
	s.notify()
}

// Load replaces the collection, dropping selection and editing.
func (s *Store) Load(elements []domain.CanvasElement) {
	next := make([]domain.CanvasElement, 0, len(elements))
	for _, el := range elements {
		next = append(next, el.Clone())
	}
	s.mu.Lock()
	s.elements = next
	s.selected, s.editing = "", ""
	s.mu.Unlock()
	s.notify()
}

// List returns the elements in insertion order.
func (s *Store) List() []domain.CanvasElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.elements)
}

// PaintOrder returns the elements in draw order.
func (s *Store) PaintOrder() []domain.CanvasElement {
	return PaintOrder(s.List())
}

// Get returns a copy of the element with id.
func (s *Store) Get(id string) (domain.CanvasElement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.elements[idx].Clone(), true
	}
	return domain.CanvasElement{}, false
}

// Len returns the number of elements.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// Select marks id as selected. An empty id clears the selection; unknown ids
// are ignored. Moving the selection off the edited element ends editing.
func (s *Store) Select(id string) {
	s.mu.Lock()
	if id != "" && s.indexOf(id) < 0 {
		s.mu.Unlock()
		return
	}
	s.selected = id
	if s.editing != id {
		s.editing = ""
	}
	s.mu.Unlock()
	s.notify()
}

// Selected returns the selected id or "".
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// BeginEdit selects the text element id and marks it as being edited.
func (s *Store) BeginEdit(id string) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 || s.elements[idx].Kind != domain.KindText {
		s.mu.Unlock()
		return false
	}
	s.selected, s.editing = id, id
	s.mu.Unlock()
	s.notify()
	return true
}

// EndEdit leaves editing; the selection is kept.
func (s *Store) EndEdit() {
	s.mu.Lock()
	s.editing = ""
	s.mu.Unlock()
	s.notify()
}

// Editing returns the id being edited or "".
func (s *Store) Editing() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editing
}

// MarshalJSON dumps the scene in wire form.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Elements []domain.CanvasElement `json:"elements"`
	}{Elements: s.List()})
}

func (s *Store) indexOf(id string) int {
	for i := range s.elements {
		if s.elements[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(in []domain.CanvasElement) []domain.CanvasElement {
	out := make([]domain.CanvasElement, len(in))
	for i, el := range in {
		out[i] = el.Clone()
	}
	return out
}

// PaintOrder orders elements for drawing: assets in insertion order, then
// text in insertion order, so text is always on top.
func PaintOrder(elements []domain.CanvasElement) []domain.CanvasElement {
	out := make([]domain.CanvasElement, 0, len(elements))
	for _, el := range elements {
		if el.Kind != domain.KindText {
			out = append(out, el)
		}
	}
	for _, el := range elements {
		if el.Kind == domain.KindText {
			out = append(out, el)
		}
	}
	return out
}
