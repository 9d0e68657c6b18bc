/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	"gocanvas/internal/animation"
	"gocanvas/internal/domain"
	"gocanvas/internal/export"
	applog "gocanvas/internal/log"
	"gocanvas/internal/storage"
	"gocanvas/internal/telemetry"
	"gocanvas/internal/textlayout"
	"gocanvas/internal/version"
)

// MaxRequestBytes bounds the render request body.
const MaxRequestBytes = 64 << 20

// VideoFileName is the encoder output inside the output directory.
const VideoFileName = "video.mp4"

// Error messages of the render endpoint.
const (
	msgInvalidRequest = "invalid request"
	msgBusy           = "render server busy"
	msgRenderFailed   = "Failed to render video"
)

const renderRequestSchema = `{
  "type": "object",
  "required": ["elements"],
  "properties": {
    "elements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"enum": ["text", "image", "sticker"]},
          "pos": {"type": "object", "properties": {"x": {"type": "number"}, "y": {"type": "number"}}},
          "size": {"type": "object", "properties": {"width": {"type": "number"}, "height": {"type": "number"}}},
          "properties": {"type": "object"}
        }
      }
    },
    "theme": {
      "type": "object",
      "properties": {
        "background": {"type": "string"},
        "gradientTo": {"type": "string"},
        "textColor": {"type": "string"}
      }
    },
    "video": {
      "type": "object",
      "required": ["width", "height", "fps", "durationInFrames"],
      "properties": {
        "width": {"type": "integer", "minimum": 1, "maximum": 7680},
        "height": {"type": "integer", "minimum": 1, "maximum": 4320},
        "fps": {"type": "integer", "minimum": 1, "maximum": 120},
        "durationInFrames": {"type": "integer", "minimum": 1, "maximum": 36000}
      }
    }
  }
}`

// ServerConfig configures the render server.
type ServerConfig struct {
	Addr      string
	OutDir    string
	Token     string // when set, /api requests must carry it as a bearer token
	Advertise bool
	Video     domain.VideoSpec
	Canvas    domain.Size
	Theme     domain.Theme
	Decoder   export.Decoder
	Fonts     *textlayout.FontLibrary
}

// Server renders scenes to MP4 one at a time.
type Server struct {
	cfg    ServerConfig
	jobs   storage.JobStore
	enc    Encoder
	hub    *Hub
	schema *gojsonschema.Schema
	lock   *flock.Flock
	newID  func() string

	render sync.Mutex
}

// NewServer prepares the output directory and compiles the request schema.
func NewServer(cfg ServerConfig, jobs storage.JobStore, enc Encoder) (*Server, error) {
	if jobs == nil {
		return nil, errors.New("job store is required")
	}
	if enc == nil {
		enc = FFmpegEncoder{}
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "out"
	}
	if cfg.Video.FPS <= 0 || cfg.Video.Width <= 0 || cfg.Video.Height <= 0 || cfg.Video.DurationInFrames <= 0 {
		cfg.Video = animation.DefaultVideo
	}
	if cfg.Canvas.Width <= 0 || cfg.Canvas.Height <= 0 {
		cfg.Canvas = domain.Size{Width: export.DefaultWidth, Height: export.DefaultHeight}
	}
	if cfg.Fonts == nil {
		lib, err := textlayout.NewFontLibrary()
		if err != nil {
			return nil, fmt.Errorf("load fonts: %w", err)
		}
		cfg.Fonts = lib
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(renderRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &Server{
		cfg:    cfg,
		jobs:   jobs,
		enc:    enc,
		hub:    NewHub(),
		schema: schema,
		lock:   flock.New(filepath.Join(cfg.OutDir, ".render.lock")),
		newID:  func() string { return uuid.NewString() },
	}, nil
}

// Hub returns the progress hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes wrapped in CORS and auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
	})
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/render-video", s.handleRender)
	mux.HandleFunc("/api/render-video/progress", s.hub.serveProgress)
	return withCORS(s.withAuth(mux))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.jobs.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("job store not ready"))
		return
	}
	if err := s.enc.Available(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs", err)
		return
	}
	if list == nil {
		list = []domain.RenderJob{}
	}
	writeJSON(w, http.StatusOK, list)
}

// validate checks raw against the request schema and decodes it.
func (s *Server) validate(raw []byte) (RenderRequest, error) {
	var req RenderRequest
	res, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return req, fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	l := applog.WithOperation(applog.WithComponent("backend"), "render")
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBytes+1))
	_ = r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}
	if len(raw) > MaxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, msgInvalidRequest, fmt.Errorf("body exceeds %d bytes", MaxRequestBytes))
		return
	}
	req, err := s.validate(raw)
	if err != nil {
		l.Info("request rejected", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}
	if !s.render.TryLock() {
		writeError(w, http.StatusConflict, msgBusy, errors.New("another render is in progress"))
		return
	}
	defer s.render.Unlock()

	spec := s.cfg.Video
	if req.Video != nil {
		spec = *req.Video
	}
	job := domain.RenderJob{
		ID:        s.newID(),
		Status:    domain.JobRunning,
		Elements:  len(req.Elements),
		Frames:    spec.DurationInFrames,
		StartedAt: time.Now().UTC(),
	}
	ctx := applog.ContextWith(r.Context(), slog.String("job", job.ID))
	if err := s.jobs.Create(ctx, job); err != nil {
		writeError(w, http.StatusInternalServerError, msgRenderFailed, err)
		return
	}
	s.hub.Publish(ProgressEvent{JobID: job.ID, Status: domain.JobRunning, Total: job.Frames})

	path, size, err := s.renderVideo(ctx, job.ID, spec, req)
	if err != nil {
		l.ErrorContext(ctx, "render failed", slog.Any("err", err))
		if ferr := s.jobs.Fail(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
			l.WarnContext(ctx, "record failure", slog.Any("err", ferr))
		}
		s.hub.Publish(ProgressEvent{JobID: job.ID, Status: domain.JobFailed, Total: job.Frames, Error: err.Error()})
		telemetry.Event("render_failed", map[string]any{"elements": job.Elements})
		writeError(w, http.StatusInternalServerError, msgRenderFailed, err)
		return
	}
	if err := s.jobs.Finish(ctx, job.ID, job.Frames, size); err != nil {
		l.WarnContext(ctx, "record finish", slog.Any("err", err))
	}
	s.hub.Publish(ProgressEvent{JobID: job.ID, Status: domain.JobDone, Frame: job.Frames, Total: job.Frames})
	telemetry.Event("render_video", map[string]any{"elements": job.Elements, "bytes": size})
	l.InfoContext(ctx, "video rendered", slog.String("path", path), slog.Int64("bytes", size), slog.Duration("took", time.Since(job.StartedAt)))

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, msgRenderFailed, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("X-Render-Job", job.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// renderVideo pipes rasterized frames into the encoder and moves the result
// to <OutDir>/video.mp4 while holding the output directory lock.
func (s *Server) renderVideo(ctx context.Context, jobID string, spec domain.VideoSpec, req RenderRequest) (string, int64, error) {
	ok, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return "", 0, fmt.Errorf("lock output dir: %w", err)
	}
	if !ok {
		return "", 0, errors.New("output directory locked by another process")
	}
	defer func() { _ = s.lock.Unlock() }()

	theme := s.cfg.Theme
	if req.Theme != nil {
		theme = *req.Theme
	}
	renderer, err := animation.NewFrameRenderer(ctx, req.Elements, animation.FrameOptions{
		Spec:         spec,
		CanvasWidth:  s.cfg.Canvas.Width,
		CanvasHeight: s.cfg.Canvas.Height,
		Theme:        theme,
		Fonts:        s.cfg.Fonts,
		Decoder:      s.cfg.Decoder,
	})
	if err != nil {
		return "", 0, err
	}

	final := filepath.Join(s.cfg.OutDir, VideoFileName)
	tmp := filepath.Join(s.cfg.OutDir, "video-"+jobID+".part.mp4")
	defer func() { _ = os.Remove(tmp) }()

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := renderer.WriteFrames(gctx, pw, req.Elements, func(done, total int) {
			s.hub.Publish(ProgressEvent{JobID: jobID, Status: domain.JobRunning, Frame: done, Total: total})
		})
		_ = pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := s.enc.Encode(gctx, renderer.Spec(), pr, tmp)
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", 0, fmt.Errorf("move video: %w", err)
	}
	st, err := os.Stat(final)
	if err != nil {
		return "", 0, err
	}
	return final, st.Size(), nil
}

// ListenAndServe serves until ctx is cancelled, advertising over mDNS when
// configured.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l := applog.WithComponent("backend")
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":3001"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	if s.cfg.Advertise {
		port := ln.Addr().(*net.TCPAddr).Port
		if adv, err := Advertise(port); err != nil {
			l.Warn("mdns advertise failed", slog.Any("err", err))
		} else {
			defer func() { _ = adv.Shutdown() }()
			l.Info("advertising render server", slog.String("service", ServiceType), slog.Int("port", port))
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	l.Info("render server listening", slog.String("addr", ln.Addr().String()), slog.String("out", s.cfg.OutDir))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAuth requires the configured bearer token on /api routes.
func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.Token == "" {
		return next
	}
	want := []byte(s.cfg.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "bearer "
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("missing bearer token"))
			return
		}
		got := []byte(strings.TrimSpace(auth[len(prefix):]))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("bad token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := ErrorBody{Error: msg}
	if err != nil {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}
