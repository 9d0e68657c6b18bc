/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
)

func newService(t *testing.T) *Service {
	t.Helper()
	lib, err := NewFontLibrary()
	if err != nil {
		t.Fatalf("font library: %v", err)
	}
	return NewService(lib)
}

func TestMeasure_EmptyContentIsNotZero(t *testing.T) {
	s := newService(t)
	got := s.Measure("", 20, "Arial", 1)
	if got.Width < 50 || got.Height < 20 {
		t.Fatalf("empty text must floor to minimum, got %+v", got)
	}
	if got != s.Measure(" ", 20, "Arial", 1) {
		t.Fatalf("empty content should measure like a single space")
	}
}

func TestMeasure_GrowsWithContentAndLines(t *testing.T) {
	s := newService(t)
	short := s.Measure("Hi", 40, "Arial", 1)
	long := s.Measure("Hello there, a much longer line", 40, "Arial", 1)
	if long.Width <= short.Width {
		t.Fatalf("longer text should be wider: %+v vs %+v", long, short)
	}
	two := s.Measure("Hello there, a much longer line\nsecond", 40, "Arial", 1)
	if two.Width != long.Width {
		t.Fatalf("width is the widest line: %v vs %v", two.Width, long.Width)
	}
	if math.Abs(two.Height-2*40*LineSpacing) > 1e-9 {
		t.Fatalf("expected two line pitches, got %v", two.Height)
	}
}

func TestMeasure_ZoomIndependent(t *testing.T) {
	s := newService(t)
	a := s.Measure("Zoom independent width", 30, "Arial", 1)
	b := s.Measure("Zoom independent width", 30, "Arial", 2)
	if math.Abs(a.Width-b.Width) > 2 || math.Abs(a.Height-b.Height) > 1e-9 {
		t.Fatalf("canvas size should not depend on zoom: %+v vs %+v", a, b)
	}
}

func TestMeasure_FallbackWithoutSurface(t *testing.T) {
	var s *Service
	if got := s.Measure("x", 20, "Arial", 1); got != Fallback {
		t.Fatalf("nil service: expected fallback, got %+v", got)
	}
	if got := newService(t).Measure("x", 20, "Arial", 0); got != Fallback {
		t.Fatalf("zero zoom: expected fallback, got %+v", got)
	}
	if got := (&Service{}).Measure("x", 20, "Arial", 1); got != Fallback {
		t.Fatalf("no library: expected fallback, got %+v", got)
	}
}

func TestFontLibrary_FamilyResolution(t *testing.T) {
	lib, err := NewFontLibrary()
	if err != nil {
		t.Fatalf("font library: %v", err)
	}
	if lib.Source("  COURIER   new ") != lib.mono {
		t.Fatalf("courier should resolve to mono")
	}
	if lib.Source("Arial") != lib.regular || lib.Source("") != lib.regular {
		t.Fatalf("generic families should resolve to regular")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Fancy.ttf"), gobold.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}
	_ = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644)
	n, err := lib.LoadDir(dir)
	if err != nil || n != 1 {
		t.Fatalf("load dir: n=%d err=%v", n, err)
	}
	if src := lib.Source("fancy"); src == nil || src == lib.regular {
		t.Fatalf("expected loaded family to resolve")
	}
	fams := lib.Families()
	if len(fams) != len(BuiltinFamilies)+1 || fams[len(fams)-1] != "Fancy" {
		t.Fatalf("families: %v", fams)
	}
	if n, err := lib.LoadDir(filepath.Join(dir, "missing")); n != 0 || err != nil {
		t.Fatalf("missing dir: n=%d err=%v", n, err)
	}
}

func TestLines(t *testing.T) {
	if got := Lines(""); len(got) != 1 || got[0] != " " {
		t.Fatalf("unexpected lines for empty: %q", got)
	}
	if got := Lines("a\nb\n"); len(got) != 3 {
		t.Fatalf("expected 3 lines, got %q", got)
	}
}
