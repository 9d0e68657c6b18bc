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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
)

// MaxVideoBytes bounds the video body the client accepts.
const MaxVideoBytes = 1 << 30

// RenderRequest is the body of POST /api/render-video.
type RenderRequest struct {
	Elements []domain.CanvasElement `json:"elements"`
	Theme    *domain.Theme          `json:"theme,omitempty"`
	Video    *domain.VideoSpec      `json:"video,omitempty"`
}

// Client talks to the render server. It allows one render in flight at a time.
type Client struct {
	BaseURL string // empty or "mdns" resolves through service discovery
	Token   string // bearer token
	client  *http.Client

	inFlight atomic.Bool
	discover func(ctx context.Context) (string, error)

	mu       sync.Mutex
	resolved string
}

// NewClient creates a new render client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		BaseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:    token,
		client:   &http.Client{Timeout: timeout},
		discover: func(ctx context.Context) (string, error) { return Discover(ctx, 3*time.Second) },
	}
}

// InFlight reports whether a render request is outstanding.
func (c *Client) InFlight() bool { return c.inFlight.Load() }

func (c *Client) base(ctx context.Context) (string, error) {
	if c.BaseURL != "" && !strings.EqualFold(c.BaseURL, "mdns") {
		return c.BaseURL, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != "" {
		return c.resolved, nil
	}
	if c.discover == nil {
		return "", errors.New("render server url not configured")
	}
	u, err := c.discover(ctx)
	if err != nil {
		return "", fmt.Errorf("discover render server: %w", err)
	}
	c.resolved = strings.TrimRight(u, "/")
	return c.resolved, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base, err := c.base(ctx)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(base + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, dest any) error {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeRenderError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Render posts the scene and returns the encoded video. A second call while
// one is outstanding fails fast with ErrRenderInFlight.
func (c *Client) Render(ctx context.Context, r RenderRequest) ([]byte, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRenderInFlight
	}
	defer c.inFlight.Store(false)

	l := applog.WithOperation(applog.WithComponent("backend"), "render_request")
	if r.Elements == nil {
		r.Elements = []domain.CanvasElement{}
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/render-video", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rerr := decodeRenderError(resp)
		l.Warn("render rejected", "status", resp.StatusCode, "err", rerr)
		return nil, rerr
	}
	video, err := io.ReadAll(io.LimitReader(resp.Body, MaxVideoBytes))
	if err != nil {
		return nil, fmt.Errorf("read video: %w", err)
	}
	l.Info("video received", "bytes", len(video), "elements", len(r.Elements), "took", time.Since(start).Round(time.Millisecond))
	return video, nil
}

func decodeRenderError(resp *http.Response) *RenderError {
	e := &RenderError{Status: resp.StatusCode, Message: resp.Status}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		e.Message = body.Error
		e.Details = body.Details
	} else if s := strings.TrimSpace(string(raw)); s != "" {
		e.Details = s
	}
	return e
}

// Jobs returns the server's recent render jobs.
func (c *Client) Jobs(ctx context.Context) ([]domain.RenderJob, error) {
	var list []domain.RenderJob
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Version returns the server's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/version", &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// Progress subscribes to render progress and calls fn for every event until
// ctx ends or the server closes the stream. An empty jobID follows all jobs.
func (c *Client) Progress(ctx context.Context, jobID string, fn func(ProgressEvent)) error {
	base, err := c.base(ctx)
	if err != nil {
		return err
	}
	u, err := url.Parse(base + "/api/render-video/progress")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if jobID != "" {
		q := u.Query()
		q.Set("job", jobID)
		u.RawQuery = q.Encode()
	}
	h := http.Header{}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if resp != nil {
			return decodeRenderError(resp)
		}
		return fmt.Errorf("dial progress: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		var ev ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read progress: %w", err)
		}
		fn(ev)
	}
}
