/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gocanvas/internal/animation"
	"gocanvas/internal/backend"
	"gocanvas/internal/canvas"
	"gocanvas/internal/catalog"
	"gocanvas/internal/config"
	"gocanvas/internal/domain"
	"gocanvas/internal/export"
	applog "gocanvas/internal/log"
	"gocanvas/internal/scene"
	"gocanvas/internal/textlayout"
	"gocanvas/internal/vector"
)

// SnapThreshold is the snapping distance in screen pixels.
const SnapThreshold = 6

var (
	// ErrNoScenePath is returned by Save when the scene was never saved.
	ErrNoScenePath = errors.New("scene has no file yet")
	// ErrNoUI is returned by Run in binaries built without the editor.
	ErrNoUI = errors.New("UI not built in this binary")
)

// Options configures an editor session.
type Options struct {
	Config    config.AppConfig
	Token     string
	ScenePath string // opened on start when set
	PacksDir  string // defaults to config.PacksDir
}

// Session wires the element store, controller, catalog and render client
// that back the editor window. It holds no toolkit state so it can be driven
// headless.
type Session struct {
	Store   *scene.Store
	Ctrl    *canvas.Controller
	Catalog *catalog.Catalog
	Fonts   *textlayout.FontLibrary
	Client  *backend.Client

	cfg config.AppConfig
	log *slog.Logger

	mu    sync.Mutex
	theme domain.Theme
	path  string
	dirty bool
}

// NewSession builds a session from opts.
func NewSession(opts Options) (*Session, error) {
	l := applog.WithComponent("ui")
	fonts, err := textlayout.NewFontLibrary()
	if err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	cat := catalog.New()
	packs := opts.PacksDir
	if packs == "" {
		if d, err := config.PacksDir(); err == nil {
			packs = d
		}
	}
	if packs != "" {
		if n, err := catalog.LoadPacks(cat, packs); err != nil {
			l.Warn("load packs", slog.String("dir", packs), slog.Any("err", err))
		} else if n > 0 {
			l.Info("packs loaded", slog.Int("count", n))
		}
	}

	cfg := opts.Config
	s := &Session{
		Store:   scene.New(),
		Catalog: cat,
		Fonts:   fonts,
		Client:  backend.NewClient(cfg.Render.BaseURL, opts.Token, cfg.Render.EffectiveTimeout()),
		cfg:     cfg,
		log:     l,
		theme:   cat.ThemeOrDefault(cfg.General.Theme),
	}
	s.Ctrl = canvas.New(s.Store,
		canvas.WithExporter(sessionExporter{s}),
		canvas.WithRenderer(sessionRenderer{s}),
		canvas.WithZoom(cfg.Canvas.InitialZoom),
		canvas.WithZoomLocked(cfg.Canvas.ZoomLocked),
		canvas.WithCanvasSize(float64(cfg.Canvas.Width), float64(cfg.Canvas.Height)),
		canvas.WithSnapping(vector.SnapOptions{Threshold: SnapThreshold, SnapToEdges: true, SnapToCenters: true}),
		canvas.WithMeasurer(textlayout.NewService(fonts)),
	)
	s.Ctrl.SetSnapping(cfg.Canvas.Snapping)
	s.Store.OnChange(func() {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	})
	if opts.ScenePath != "" {
		if err := s.Open(opts.ScenePath); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// sessionExporter renders PDFs with the session's current theme.
type sessionExporter struct{ s *Session }

func (e sessionExporter) ExportPDF(ctx context.Context, elements []domain.CanvasElement, w io.Writer) error {
	return export.PDFExporter{Options: e.s.pdfOptions()}.ExportPDF(ctx, elements, w)
}

// sessionRenderer sends the session theme and video settings with the
// scene so the server renders what the preview shows.
type sessionRenderer struct{ s *Session }

func (r sessionRenderer) RenderVideo(ctx context.Context, elements []domain.CanvasElement) ([]byte, error) {
	theme, video := r.s.Theme(), r.s.Video()
	return r.s.Client.Render(ctx, backend.RenderRequest{Elements: elements, Theme: &theme, Video: &video})
}

func (s *Session) rasterOptions() export.RasterOptions {
	return export.RasterOptions{
		Width:  s.cfg.Canvas.Width,
		Height: s.cfg.Canvas.Height,
		Theme:  s.Theme(),
		Fonts:  s.Fonts,
	}
}

func (s *Session) pdfOptions() export.PDFOptions {
	title := "Canvas"
	if p := s.Path(); p != "" {
		title = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	}
	return export.PDFOptions{RasterOptions: s.rasterOptions(), Title: title}
}

// Theme returns the export theme.
func (s *Session) Theme() domain.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// SetTheme selects a catalog theme by name.
func (s *Session) SetTheme(name string) bool {
	t, ok := s.Catalog.Theme(name)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.theme = t
	s.mu.Unlock()
	return true
}

// Video is the preview and render geometry.
func (s *Session) Video() domain.VideoSpec {
	v := s.cfg.Video
	return domain.VideoSpec{Width: v.Width, Height: v.Height, FPS: v.FPS, DurationInFrames: v.Frames}
}

// Path returns the scene file, if any.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Dirty reports unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Open replaces the scene with the file at path.
func (s *Session) Open(path string) error {
	els, err := scene.ReadFile(path)
	if err != nil {
		return err
	}
	s.Ctrl.Clear()
	s.Store.Load(els)
	s.mu.Lock()
	s.path, s.dirty = path, false
	s.mu.Unlock()
	s.log.Info("scene opened", slog.String("path", path), slog.Int("elements", len(els)))
	return nil
}

// Save writes the scene to path, or to the current file when path is empty.
func (s *Session) Save(path string) error {
	if path == "" {
		path = s.Path()
	}
	if path == "" {
		return ErrNoScenePath
	}
	if err := s.Store.WriteFile(path); err != nil {
		return err
	}
	s.mu.Lock()
	s.path, s.dirty = path, false
	s.mu.Unlock()
	s.log.Info("scene saved", slog.String("path", path))
	return nil
}

// ExportPDF writes the scene to a PDF file and returns its path.
func (s *Session) ExportPDF(ctx context.Context, path string) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := s.Ctrl.ExportPDF(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

// ExportPNG writes the scene to a PNG file and returns its path.
func (s *Session) ExportPNG(ctx context.Context, path string) (string, error) {
	return export.ExportPNG(ctx, s.Ctrl.Snapshot(), path, s.rasterOptions())
}

// RenderVideo sends the scene to the render server and writes the MP4 to path.
func (s *Session) RenderVideo(ctx context.Context, path string) error {
	video, err := s.Ctrl.RenderVideo(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, video, 0o644)
}

// NewPlayer returns a preview player over the live scene.
func (s *Session) NewPlayer(onFrame animation.FrameFunc) *animation.Player {
	return animation.NewPlayer(s.Video(), s.Store.List, onFrame)
}

// PosterFrame rasterizes the first frame at which every element of the
// current scene is fully visible.
func (s *Session) PosterFrame(ctx context.Context) (image.Image, error) {
	r, els, err := s.PreviewRenderer(ctx, s.Video())
	if err != nil {
		return nil, err
	}
	return r.RasterizeFrame(ctx, els, animation.SettledFrame(len(els)))
}

// ExportPosterFrame writes the settled preview frame as PNG to path.
func (s *Session) ExportPosterFrame(ctx context.Context, path string) (string, error) {
	r, els, err := s.PreviewRenderer(ctx, s.Video())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := r.EncodeFrame(ctx, f, els, animation.SettledFrame(len(els))); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	s.log.Info("poster frame exported", slog.String("path", path))
	return path, f.Close()
}

// PreviewRenderer rasterizes preview frames of the current scene.
func (s *Session) PreviewRenderer(ctx context.Context, spec domain.VideoSpec) (*animation.FrameRenderer, []domain.CanvasElement, error) {
	els := s.Ctrl.Snapshot()
	r, err := animation.NewFrameRenderer(ctx, els, animation.FrameOptions{
		Spec:         spec,
		CanvasWidth:  float64(s.cfg.Canvas.Width),
		CanvasHeight: float64(s.cfg.Canvas.Height),
		Theme:        s.Theme(),
		Fonts:        s.Fonts,
	})
	return r, els, err
}

// Close releases controller resources.
func (s *Session) Close() { s.Ctrl.Close() }

// ParseFontSize reads a font size typed by the user. Unparseable input
// falls back to the default size; parsed values are clamped.
func ParseFontSize(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		v = 0
	}
	return domain.ClampFontSize(v)
}
