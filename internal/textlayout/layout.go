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

// Off-screen text measurement used to auto-fit text elements. Layout is a
// single font at a single size per element; lines break only on "\n".

import (
	"math"
	"strings"

	"gocanvas/internal/domain"
)

// LineSpacing is the line pitch as a multiple of the font size. The raster
// pipeline draws lines with the same pitch.
const LineSpacing = 1.2

// Fallback is returned when no measurement surface is available.
var Fallback = domain.Size{Width: 100, Height: 50}

// Lines splits content into display lines. Empty content is one blank line
// so a box never collapses.
func Lines(content string) []string {
	if content == "" {
		content = " "
	}
	return strings.Split(content, "\n")
}

// LineHeight returns the line pitch for fontSize.
func LineHeight(fontSize float64) float64 { return fontSize * LineSpacing }

// Service measures text with the same faces the renderers draw with.
type Service struct {
	Lib *FontLibrary
}

// NewService returns a service over lib.
func NewService(lib *FontLibrary) *Service { return &Service{Lib: lib} }

// Measure lays content out at the on-screen size (fontSize·zoom), reads the
// bounding box, converts it back to canvas units and floors it to the text
// minimum. A nil service, a library without fonts or a non-positive zoom
// yields Fallback.
func (s *Service) Measure(content string, fontSize float64, family string, zoom float64) domain.Size {
	if s == nil || zoom <= 0 || math.IsNaN(zoom) {
		return Fallback
	}
	fontSize = domain.ClampFontSize(fontSize)
	face := s.Lib.Face(family, fontSize*zoom)
	if face == nil {
		return Fallback
	}
	lines := Lines(content)
	var width float64
	for _, l := range lines {
		width = max(width, face.Advance(l))
	}
	height := float64(len(lines)) * LineHeight(fontSize*zoom)
	return domain.ClampSize(domain.KindText, domain.Size{
		Width:  math.Ceil(width) / zoom,
		Height: height / zoom,
	})
}

// MeasureText measures a text element's payload at zoom.
func (s *Service) MeasureText(p domain.TextProps, zoom float64) domain.Size {
	return s.Measure(p.Content, p.FontSize, p.FontFamily, zoom)
}
