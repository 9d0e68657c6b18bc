/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package animation

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocanvas/internal/domain"
)

// ArchiveManifestName is the metadata entry stored next to the frames.
const ArchiveManifestName = "frames.json"

// ArchiveManifest describes a frame archive.
type ArchiveManifest struct {
	Video    domain.VideoSpec `json:"video"`
	Frames   []string         `json:"frames"`
	Elements int              `json:"elements"`
	Created  time.Time        `json:"created"`
}

// WriteFrameArchive renders every step-th frame into a zip of numbered PNGs
// plus a frames.json manifest. step <= 0 keeps every frame.
func WriteFrameArchive(ctx context.Context, r *FrameRenderer, elements []domain.CanvasElement, outPath string, step int) (ArchiveManifest, error) {
	if step <= 0 {
		step = 1
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".zip") {
		outPath = outPath + ".zip"
	}
	zw, f, err := createZip(outPath)
	if err != nil {
		return ArchiveManifest{}, err
	}
	defer func() { _ = f.Close() }()

	total := r.spec.DurationInFrames
	pad := len(fmt.Sprint(max(total-1, 0)))
	m := ArchiveManifest{Video: r.spec, Elements: len(elements), Created: time.Now().UTC()}

	imgBuf := &bytes.Buffer{}
	for frame := 0; frame < total; frame += step {
		imgBuf.Reset()
		if err := r.EncodeFrame(ctx, imgBuf, elements, frame); err != nil {
			return m, err
		}
		name := fmt.Sprintf("%0*d.png", pad, frame)
		if err := addZipFile(zw, name, imgBuf.Bytes()); err != nil {
			return m, fmt.Errorf("zip add frame: %w", err)
		}
		m.Frames = append(m.Frames, name)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return m, fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, ArchiveManifestName, raw); err != nil {
		return m, fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return m, fmt.Errorf("close zip: %w", err)
	}
	return m, nil
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create archive: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
