/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"gocanvas/internal/domain"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("el-%d", n)
	}
}

type fakeMeasurer struct{ zoom float64 }

func (f *fakeMeasurer) MeasureText(p domain.TextProps, zoom float64) domain.Size {
	f.zoom = zoom
	return domain.ClampSize(domain.KindText, domain.Size{
		Width:  float64(len(p.Content)) * p.FontSize * 0.5,
		Height: p.FontSize * 1.2,
	})
}

func TestAddText_DefaultsSelectsAndEdits(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	el := s.AddText()
	if el.ID != "el-1" || el.Kind != domain.KindText {
		t.Fatalf("unexpected element %+v", el)
	}
	if el.Position != DefaultTextPos || el.Size != DefaultTextSize {
		t.Fatalf("unexpected geometry %+v %+v", el.Position, el.Size)
	}
	if el.Text.Content != "New Text" || el.Text.FontSize != 20 || el.Text.Color != "#000000" || el.Text.FontFamily != "Arial" {
		t.Fatalf("unexpected payload %+v", el.Text)
	}
	if s.Selected() != el.ID || s.Editing() != el.ID {
		t.Fatalf("new text should be selected and edited")
	}
}

func TestAddImageAndSticker(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	img := s.AddImage("data:image/png;base64,AA==", "a.png")
	if img.Position != DefaultImagePos || img.Size != DefaultImageSize || img.SourceRef() == "" {
		t.Fatalf("unexpected image %+v", img)
	}
	if s.Selected() != "" {
		t.Fatalf("adding an image should not select it")
	}
	st := s.AddSticker(domain.Sticker{Name: "Sun", URL: "https://example.com/sun.png"})
	if st.Kind != domain.KindSticker || st.Asset.DisplayName != "Sun" || st.Position != DefaultStickerPos {
		t.Fatalf("unexpected sticker %+v", st)
	}
	if s.Selected() != st.ID || s.Editing() != "" {
		t.Fatalf("sticker should be selected, not edited")
	}
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	s.AddText()
	before := s.List()
	pos := domain.Point{X: 1, Y: 1}
	if s.Update("missing", Patch{Position: &pos}) {
		t.Fatalf("update of unknown id must report false")
	}
	s.Delete("missing")
	if _, ok := s.Duplicate("missing"); ok {
		t.Fatalf("duplicate of unknown id must report false")
	}
	after := s.List()
	if len(before) != len(after) || before[0].Position != after[0].Position {
		t.Fatalf("store changed on unknown id")
	}
}

func TestListSnapshotsAreImmutable(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	el := s.AddText()
	snap := s.List()
	pos := domain.Point{X: 500, Y: 600}
	content := "changed"
	s.Update(el.ID, Patch{Position: &pos, Content: &content})
	if snap[0].Position != DefaultTextPos || snap[0].Text.Content != DefaultText {
		t.Fatalf("earlier snapshot was mutated: %+v", snap[0])
	}
	snap[0].Text.Content = "tampered"
	if got, _ := s.Get(el.ID); got.Text.Content != "changed" {
		t.Fatalf("snapshot edits leaked into the store: %q", got.Text.Content)
	}
}

func TestUpdate_ClampsSizeAndFontSize(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	txt := s.AddText()
	img := s.AddImage("x.png", "")
	tiny := domain.Size{Width: 1, Height: 1}
	s.Update(txt.ID, Patch{Size: &tiny})
	s.Update(img.ID, Patch{Size: &tiny})
	if got, _ := s.Get(txt.ID); got.Size != (domain.Size{Width: 50, Height: 20}) {
		t.Fatalf("text floor not applied: %+v", got.Size)
	}
	if got, _ := s.Get(img.ID); got.Size != (domain.Size{Width: 50, Height: 50}) {
		t.Fatalf("image floor not applied: %+v", got.Size)
	}

	cases := []struct{ in, want float64 }{
		{0, 20}, {math.NaN(), 20}, {4, 8}, {-3, 8}, {250, 100}, {42, 42},
	}
	for _, c := range cases {
		v := c.in
		s.Update(txt.ID, Patch{FontSize: &v})
		if got, _ := s.Get(txt.ID); got.Text.FontSize != c.want {
			t.Fatalf("font size %v: want %v got %v", c.in, c.want, got.Text.FontSize)
		}
	}
}

func TestUpdate_TextEditsRemeasure(t *testing.T) {
	m := &fakeMeasurer{}
	zoom := 0.4
	s := New(WithIDFunc(seqIDs()), WithMeasurer(m, func() float64 { return zoom }))
	el := s.AddText()
	content := strings.Repeat("w", 40)
	s.Update(el.ID, Patch{Content: &content})
	got, _ := s.Get(el.ID)
	if got.Size.Width != 400 || got.Size.Height != 24 {
		t.Fatalf("expected measured size 400x24, got %+v", got.Size)
	}
	if m.zoom != 0.4 {
		t.Fatalf("measurer should see the current zoom, got %v", m.zoom)
	}
	color := "#ff0000"
	s.Update(el.ID, Patch{Color: &color})
	if again, _ := s.Get(el.ID); again.Size != got.Size || again.Text.Color != color {
		t.Fatalf("color-only edit should not remeasure: %+v", again)
	}
}

func TestDuplicate_OffsetsAndSelects(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	orig := s.AddText()
	dup, ok := s.Duplicate(orig.ID)
	if !ok || dup.ID == orig.ID {
		t.Fatalf("expected a copy with a new id, got %+v", dup)
	}
	if dup.Position.X != orig.Position.X+20 || dup.Position.Y != orig.Position.Y+20 {
		t.Fatalf("unexpected offset %+v", dup.Position)
	}
	if s.Selected() != dup.ID || s.Editing() != "" {
		t.Fatalf("duplicate should be selected and not edited")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 elements, got %d", s.Len())
	}
}

func TestDeleteAndClearResetState(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	el := s.AddText()
	s.Delete(el.ID)
	if s.Selected() != "" || s.Editing() != "" || s.Len() != 0 {
		t.Fatalf("delete should clear state")
	}
	s.AddText()
	s.AddImage("a.png", "")
	s.Clear()
	if s.Selected() != "" || s.Editing() != "" || s.Len() != 0 {
		t.Fatalf("clear should reset everything")
	}
}

func TestSelectAndEditRules(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	txt := s.AddText()
	img := s.AddImage("a.png", "")
	s.Select(img.ID)
	if s.Selected() != img.ID || s.Editing() != "" {
		t.Fatalf("selecting another element must end editing")
	}
	if s.BeginEdit(img.ID) {
		t.Fatalf("images cannot be edited")
	}
	if !s.BeginEdit(txt.ID) || s.Selected() != txt.ID {
		t.Fatalf("editing implies selection")
	}
	s.Select("missing")
	if s.Selected() != txt.ID {
		t.Fatalf("unknown id must not change selection")
	}
	s.EndEdit()
	if s.Editing() != "" || s.Selected() != txt.ID {
		t.Fatalf("end edit keeps selection")
	}
}

func TestPaintOrder_TextAboveAssets(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	t1 := s.AddText()
	i1 := s.AddImage("a.png", "")
	t2 := s.AddText()
	st := s.AddSticker(domain.Sticker{Name: "x", URL: "y"})
	var got []string
	for _, el := range s.PaintOrder() {
		got = append(got, el.ID)
	}
	want := []string{i1.ID, st.ID, t1.ID, t2.ID}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("paint order %v, want %v", got, want)
	}
}

func TestOnChangeAndMarshal(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	calls := 0
	s.OnChange(func() { calls++ })
	s.AddText()
	s.AddImage("a.png", "a")
	if calls != 2 {
		t.Fatalf("expected 2 notifications, got %d", calls)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back struct {
		Elements []domain.CanvasElement `json:"elements"`
	}
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Elements) != 2 || back.Elements[1].SourceRef() != "a.png" {
		t.Fatalf("unexpected dump %s", raw)
	}

	s.Load(back.Elements[:1])
	if s.Len() != 1 || calls != 3 {
		t.Fatalf("load should replace and notify: len=%d calls=%d", s.Len(), calls)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				el := s.AddImage("a.png", "")
				_ = s.List()
				pos := domain.Point{X: float64(j), Y: float64(j)}
				s.Update(el.ID, Patch{Position: &pos})
			}
		}()
	}
	wg.Wait()
	if s.Len() != 400 {
		t.Fatalf("expected 400 elements, got %d", s.Len())
	}
	seen := map[string]bool{}
	for _, el := range s.List() {
		if seen[el.ID] {
			t.Fatalf("duplicate id %s", el.ID)
		}
		seen[el.ID] = true
	}
}
