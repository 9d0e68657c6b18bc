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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/text/cases"
)

// FontLibrary stores parsed fonts keyed by folded family name. Families that
// are not loaded resolve to a built-in Go font: monospace-like names to Go Mono,
// everything else to Go Regular.
type FontLibrary struct {
	mu      sync.RWMutex
	sources map[string]*text.FontSource
	names   map[string]string
	regular *text.FontSource
	mono    *text.FontSource
}

var fold = cases.Fold()

var monoFamilies = map[string]bool{
	"courier":     true,
	"courier new": true,
	"monospace":   true,
	"consolas":    true,
	"go mono":     true,
}

func familyKey(family string) string {
	return fold.String(strings.Join(strings.Fields(family), " "))
}

// NewFontLibrary parses the built-in Go fonts.
func NewFontLibrary() (*FontLibrary, error) {
	regular, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse go regular: %w", err)
	}
	mono, err := text.NewFontSource(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse go mono: %w", err)
	}
	return &FontLibrary{sources: make(map[string]*text.FontSource), regular: regular, mono: mono}, nil
}

// LoadTTF loads a font file into the library under family.
func (fl *FontLibrary) LoadTTF(family, path string) error {
	src, err := text.NewFontSourceFromFile(path)
	if err != nil {
		return fmt.Errorf("load font %s: %w", path, err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.sources == nil {
		fl.sources = make(map[string]*text.FontSource)
	}
	if fl.names == nil {
		fl.names = make(map[string]string)
	}
	key := familyKey(family)
	fl.sources[key] = src
	fl.names[key] = family
	return nil
}

// BuiltinFamilies are offered in the font picker even when no font files are loaded.
var BuiltinFamilies = []string{"Arial", "Courier New", "Georgia", "Monospace"}

// Families lists the builtin families followed by the loaded ones, sorted,
// without duplicates.
func (fl *FontLibrary) Families() []string {
	out := append([]string(nil), BuiltinFamilies...)
	if fl == nil {
		return out
	}
	seen := map[string]bool{}
	for _, f := range out {
		seen[familyKey(f)] = true
	}
	fl.mu.RLock()
	var loaded []string
	for key, name := range fl.names {
		if !seen[key] {
			loaded = append(loaded, name)
		}
	}
	fl.mu.RUnlock()
	sort.Strings(loaded)
	return append(out, loaded...)
}

// LoadDir loads every .ttf/.otf in dir, using the file name without extension
// as family. A missing dir is not an error. Returns the number of fonts loaded.
func (fl *FontLibrary) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".ttf" && ext != ".otf") {
			continue
		}
		family := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if err := fl.LoadTTF(family, filepath.Join(dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Source resolves a family to a font source. It returns nil only for a nil library.
func (fl *FontLibrary) Source(family string) *text.FontSource {
	if fl == nil {
		return nil
	}
	key := familyKey(family)
	fl.mu.RLock()
	src, ok := fl.sources[key]
	fl.mu.RUnlock()
	if ok {
		return src
	}
	if monoFamilies[key] {
		return fl.mono
	}
	return fl.regular
}

// Face returns a face for family at size px, or nil when nothing resolves.
func (fl *FontLibrary) Face(family string, size float64) text.Face {
	src := fl.Source(family)
	if src == nil {
		return nil
	}
	return src.Face(size)
}
