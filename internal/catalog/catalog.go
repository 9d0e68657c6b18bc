/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package catalog holds the export themes and the sticker catalog, including
// packs of extra themes and stickers installed from zip archives.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"gocanvas/internal/domain"
)

var builtinThemes = []domain.Theme{
	{Name: "White", Background: "#ffffff", TextColor: "#22223b"},
	{Name: "Beach", Background: "#E0F7FA", GradientTo: "#B2EBF2", TextColor: "#006064"},
	{Name: "Mountains", Background: "#E8F5E9", GradientTo: "#C8E6C9", TextColor: "#1B5E20"},
	{Name: "Cityscape", Background: "#ECEFF1", GradientTo: "#CFD8DC", TextColor: "#37474F"},
}

var builtinStickers = []domain.Sticker{
	{Name: "TravelMap", URL: "https://openclipart.org/image/2000px/170987", Category: "travel"},
	{Name: "Heart", URL: "https://openclipart.org/image/2000px/178760", Category: "decorative"},
	{Name: "Sun", URL: "https://openclipart.org/image/2000px/180897", Category: "weather"},
	{Name: "Pin", URL: "https://cdn.pixabay.com/photo/2023/01/04/23/05/pin-7697708_640.png", Category: "location"},
	{Name: "Compass", URL: "https://openclipart.org/image/2000px/181259", Category: "travel"},
	{Name: "Globe", URL: "https://openclipart.org/image/2000px/211884", Category: "travel"},
}

// DefaultTheme is used when a configured theme name is unknown.
var DefaultTheme = builtinThemes[0]

// Catalog is a concurrency-safe set of themes and stickers keyed by
// case-insensitive name. Later additions replace earlier entries with the same name.
type Catalog struct {
	mu       sync.RWMutex
	themes   []domain.Theme
	stickers []domain.Sticker
}

// New returns a catalog seeded with the built-in entries.
func New() *Catalog {
	c := &Catalog{}
	for _, t := range builtinThemes {
		c.AddTheme(t)
	}
	for _, s := range builtinStickers {
		c.AddSticker(s)
	}
	return c
}

// AddTheme inserts or replaces a theme.
func (c *Catalog) AddTheme(t domain.Theme) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.themes {
		if strings.EqualFold(c.themes[i].Name, t.Name) {
			c.themes[i] = t
			return
		}
	}
	c.themes = append(c.themes, t)
}

// AddSticker inserts or replaces a sticker.
func (c *Catalog) AddSticker(s domain.Sticker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.stickers {
		if strings.EqualFold(c.stickers[i].Name, s.Name) {
			c.stickers[i] = s
			return
		}
	}
	c.stickers = append(c.stickers, s)
}

// Theme looks up a theme by name.
func (c *Catalog) Theme(name string) (domain.Theme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.themes {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t, true
		}
	}
	return domain.Theme{}, false
}

// ThemeOrDefault returns the named theme or DefaultTheme.
func (c *Catalog) ThemeOrDefault(name string) domain.Theme {
	if t, ok := c.Theme(name); ok {
		return t
	}
	return DefaultTheme
}

// Sticker looks up a sticker by name.
func (c *Catalog) Sticker(name string) (domain.Sticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.stickers {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s, true
		}
	}
	return domain.Sticker{}, false
}

// Themes returns all themes in insertion order.
func (c *Catalog) Themes() []domain.Theme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Theme(nil), c.themes...)
}

// Stickers returns all stickers sorted by category, then name.
func (c *Catalog) Stickers() []domain.Sticker {
	c.mu.RLock()
	out := append([]domain.Sticker(nil), c.stickers...)
	c.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}
