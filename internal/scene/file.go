/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocanvas/internal/domain"
)

// MaxSceneBytes bounds a scene document read from disk.
const MaxSceneBytes = 64 << 20

// Decode reads a scene document. Both {"elements":[...]} and a bare element
// array are accepted.
func Decode(r io.Reader) ([]domain.CanvasElement, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxSceneBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxSceneBytes {
		return nil, fmt.Errorf("scene exceeds %d bytes", MaxSceneBytes)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []domain.CanvasElement
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode scene: %w", err)
		}
		return list, nil
	}
	var doc struct {
		Elements []domain.CanvasElement `json:"elements"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}
	return doc.Elements, nil
}

// ReadFile decodes the scene document at path.
func ReadFile(path string) ([]domain.CanvasElement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	els, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return els, nil
}

// WriteFile saves the store to path through a temp file and rename, so a
// crash never leaves a half-written scene.
func (s *Store) WriteFile(path string) error {
	data, err := json.MarshalIndent(struct {
		Elements []domain.CanvasElement `json:"elements"`
	}{Elements: s.List()}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".scene-*.json")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
