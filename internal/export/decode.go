/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gg"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
)

// Decoder resolves an asset reference to a bitmap.
type Decoder interface {
	Decode(ctx context.Context, ref string) (image.Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, ref string) (image.Image, error)

func (f DecoderFunc) Decode(ctx context.Context, ref string) (image.Image, error) { return f(ctx, ref) }

// MaxAssetBytes bounds a single fetched or embedded asset.
const MaxAssetBytes = 32 << 20

// RefDecoder understands data URLs, file:// URLs, plain paths and http(s) URLs.
type RefDecoder struct {
	Client  *http.Client
	Timeout time.Duration // per http fetch; default 20s
}

func (d RefDecoder) Decode(ctx context.Context, ref string) (image.Image, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, errors.New("empty asset reference")
	case strings.HasPrefix(ref, "data:"):
		raw, err := decodeDataURL(ref)
		if err != nil {
			return nil, err
		}
		return decodeBytes(raw)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return d.fetch(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parse file url: %w", err)
		}
		return decodeFile(u.Path)
	default:
		return decodeFile(ref)
	}
}

func (d RefDecoder) fetch(ctx context.Context, ref string) (image.Image, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch asset: %s", resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return decodeBytes(raw)
}

func decodeDataURL(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, errors.New("malformed data url")
	}
	meta, payload := ref[len("data:"):comma], ref[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data url base64: %w", err)
		}
		return raw, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data url: %w", err)
	}
	return []byte(s), nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(io.LimitReader(f, MaxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func decodeBytes(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Assets holds decoded bitmaps keyed by element id.
type Assets struct {
	images map[string]*gg.ImageBuf
	failed map[string]error
}

// Image returns the decoded bitmap for id, or nil.
func (a *Assets) Image(id string) *gg.ImageBuf {
	if a == nil {
		return nil
	}
	return a.images[id]
}

// Failed returns decode errors by element id.
func (a *Assets) Failed() map[string]error {
	if a == nil {
		return nil
	}
	return a.failed
}

// Len returns the number of decoded bitmaps.
func (a *Assets) Len() int {
	if a == nil {
		return 0
	}
	return len(a.images)
}

// decodeLimit caps concurrent decodes.
const decodeLimit = 8

// DecodeAll decodes every image and sticker concurrently and waits for all of
// them. A failed decode is logged and recorded, never returned; only context
// cancellation fails the join.
func DecodeAll(ctx context.Context, dec Decoder, elements []domain.CanvasElement) (*Assets, error) {
	if dec == nil {
		dec = RefDecoder{}
	}
	l := applog.WithOperation(applog.WithComponent("export"), "decode")
	out := &Assets{images: map[string]*gg.ImageBuf{}, failed: map[string]error{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(decodeLimit)
	for _, el := range elements {
		if !el.IsAsset() {
			continue
		}
		id, ref := el.ID, el.SourceRef()
		g.Go(func() error {
			img, err := dec.Decode(gctx, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.failed[id] = err
				l.WarnContext(ctx, "asset decode failed", slog.String("id", id), slog.Any("err", err))
				return nil
			}
			out.images[id] = gg.ImageBufFromImage(img)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
