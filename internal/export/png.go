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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
	"gocanvas/internal/telemetry"
)

// DefaultPNGName is the file name used when ExportPNG gets a directory.
const DefaultPNGName = "canvas.png"

// WritePNG rasterizes elements and encodes the surface to w.
func WritePNG(ctx context.Context, w io.Writer, elements []domain.CanvasElement, opts RasterOptions) error {
	dc, err := rasterize(ctx, elements, opts)
	if err != nil {
		return err
	}
	defer dc.Close()
	_ = dc.FlushGPU()
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// ExportPNG writes the scene as a PNG to path. A directory path (or "")
// receives DefaultPNGName.
func ExportPNG(ctx context.Context, elements []domain.CanvasElement, path string, opts RasterOptions) (string, error) {
	out, err := resolveOut(path, DefaultPNGName)
	if err != nil {
		return "", err
	}
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create png: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WritePNG(ctx, bw, elements, opts); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("flush png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close png: %w", err)
	}
	applog.WithOperation(applog.WithComponent("export"), "png").Info("png written", "path", out, "elements", len(elements))
	telemetry.Event("export_png", map[string]any{"elements": len(elements)})
	return out, nil
}
