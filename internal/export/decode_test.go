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
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gocanvas/internal/domain"
)

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func dataURL(t *testing.T, c color.Color) string {
	t.Helper()
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(solidPNG(t, c))
}

func asset(id, ref string, x, y, w, h float64) domain.CanvasElement {
	return domain.CanvasElement{
		ID:       id,
		Kind:     domain.KindImage,
		Position: domain.Point{X: x, Y: y},
		Size:     domain.Size{Width: w, Height: h},
		Asset:    &domain.AssetProps{SourceRef: ref},
	}
}

func TestRefDecoder_DataURLAndPath(t *testing.T) {
	ctx := context.Background()
	img, err := RefDecoder{}.Decode(ctx, dataURL(t, color.RGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatalf("data url: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}

	p := filepath.Join(t.TempDir(), "blue.png")
	if err := os.WriteFile(p, solidPNG(t, color.RGBA{0, 0, 255, 255}), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, ref := range []string{p, "file://" + p} {
		if _, err := (RefDecoder{}).Decode(ctx, ref); err != nil {
			t.Fatalf("decode %q: %v", ref, err)
		}
	}
}

func TestRefDecoder_Errors(t *testing.T) {
	ctx := context.Background()
	for _, ref := range []string{"", "data:image/png;base64,!!!", "data:nocomma", filepath.Join(t.TempDir(), "missing.png")} {
		if _, err := (RefDecoder{}).Decode(ctx, ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}

func TestDecodeAll_RecordsFailuresWithoutFailingJoin(t *testing.T) {
	var calls atomic.Int32
	dec := DecoderFunc(func(_ context.Context, ref string) (image.Image, error) {
		calls.Add(1)
		if ref == "bad" {
			return nil, errors.New("boom")
		}
		return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
	})
	els := []domain.CanvasElement{
		asset("a", "ok", 0, 0, 50, 50),
		asset("b", "bad", 0, 0, 50, 50),
		asset("c", "ok", 0, 0, 50, 50),
		{ID: "t", Kind: domain.KindText, Text: &domain.TextProps{Content: "x"}},
	}
	assets, err := DecodeAll(context.Background(), dec, els)
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 decodes (text skipped), got %d", calls.Load())
	}
	if assets.Len() != 2 || assets.Image("a") == nil || assets.Image("c") == nil {
		t.Fatalf("expected a and c decoded, got %d", assets.Len())
	}
	if assets.Image("b") != nil || assets.Failed()["b"] == nil {
		t.Fatalf("expected b recorded as failed: %v", assets.Failed())
	}
}

func TestDecodeAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dec := DecoderFunc(func(ctx context.Context, _ string) (image.Image, error) { return nil, ctx.Err() })
	if _, err := DecodeAll(ctx, dec, []domain.CanvasElement{asset("a", "x", 0, 0, 50, 50)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
