/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
)

// ManifestName is the pack manifest at the archive root.
const ManifestName = "pack.json"

// Manifest describes the contents of a theme/sticker pack. Sticker URLs that
// are not absolute URLs are paths inside the archive.
type Manifest struct {
	Name     string           `json:"name"`
	Created  string           `json:"created,omitempty"`
	Themes   []domain.Theme   `json:"themes,omitempty"`
	Stickers []domain.Sticker `json:"stickers,omitempty"`
}

const manifestSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9_.-]*$"},
    "created": {"type": "string"},
    "themes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "background"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "background": {"type": "string", "pattern": "^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$"},
          "gradientTo": {"type": "string", "pattern": "^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$"},
          "textColor": {"type": "string"}
        }
      }
    },
    "stickers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "url"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "url": {"type": "string", "minLength": 1},
          "category": {"type": "string"}
        }
      }
    }
  }
}`

// ValidateManifest checks raw manifest JSON against the pack schema.
func ValidateManifest(raw []byte) (Manifest, error) {
	res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(manifestSchema), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Manifest{}, fmt.Errorf("validate manifest: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Manifest{}, fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// ExportPack writes m and the given local files into a zip at destZipPath.
// files maps archive paths to files on disk.
func ExportPack(m Manifest, files map[string]string, destZipPath string) error {
	l := applog.WithOperation(applog.WithComponent("catalog"), "export").With(slog.String("pack", m.Name))
	if strings.TrimSpace(destZipPath) == "" {
		return errors.New("destZipPath is required")
	}
	if m.Created == "" {
		m.Created = time.Now().UTC().Format(time.RFC3339)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if _, err := ValidateManifest(raw); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destZipPath), 0o755); err != nil {
		return fmt.Errorf("ensure zip dir: %w", err)
	}
	zf, err := os.Create(destZipPath)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	w, err := zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("add manifest: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	for name, src := range files {
		if err := addFile(zw, name, src); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	l.Info("pack exported", slog.Int("files", len(files)), slog.String("zip", destZipPath))
	return nil
}

// PackFiles maps the archive paths of m's local sticker references to files
// under baseDir, the directory holding the manifest.
func PackFiles(m Manifest, baseDir string) map[string]string {
	files := map[string]string{}
	for _, s := range m.Stickers {
		if !isLocalRef(s.URL) {
			continue
		}
		name := path.Clean(filepath.ToSlash(s.URL))
		files[name] = filepath.Join(baseDir, filepath.FromSlash(name))
	}
	return files
}

func isLocalRef(ref string) bool {
	return !strings.Contains(ref, "://") && !strings.HasPrefix(ref, "data:")
}

func addFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	fw, err := zw.Create(path.Clean(filepath.ToSlash(name)))
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

// InstallPack validates the pack at packZipPath and extracts it into
// packsDir/<pack name>. Existing files are not overwritten. It returns the
// install directory and the number of files written.
func InstallPack(packsDir, packZipPath string) (string, int, error) {
	l := applog.WithOperation(applog.WithComponent("catalog"), "install").With(slog.String("zip", packZipPath))
	r, err := zip.OpenReader(packZipPath)
	if err != nil {
		return "", 0, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	var manifest *zip.File
	for _, f := range r.File {
		if f.Name == ManifestName {
			manifest = f
			break
		}
	}
	if manifest == nil {
		return "", 0, fmt.Errorf("pack has no %s", ManifestName)
	}
	raw, err := readZipFile(manifest)
	if err != nil {
		return "", 0, err
	}
	m, err := ValidateManifest(raw)
	if err != nil {
		return "", 0, err
	}

	dest := filepath.Join(packsDir, m.Name)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", 0, fmt.Errorf("ensure pack dir: %w", err)
	}
	installed := 0
	for _, f := range r.File {
		clean := path.Clean(f.Name)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return dest, installed, fmt.Errorf("pack entry escapes install dir: %s", f.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(clean))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return dest, installed, err
			}
			continue
		}
		if _, err := os.Stat(target); err == nil {
			l.Warn("skip existing file", slog.String("path", target))
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return dest, installed, err
		}
		if err := extract(f, target); err != nil {
			return dest, installed, err
		}
		installed++
	}
	l.Info("pack installed", slog.String("pack", m.Name), slog.Int("files", installed))
	return dest, installed, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(io.LimitReader(rc, 1<<20))
}

func extract(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// LoadPacks adds every installed pack under packsDir to c. Relative sticker
// references are rewritten to file paths inside the pack. A missing packsDir
// is not an error.
func LoadPacks(c *Catalog, packsDir string) (int, error) {
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	loaded := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(packsDir, e.Name())
		raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
		if err != nil {
			continue
		}
		m, err := ValidateManifest(raw)
		if err != nil {
			applog.WithComponent("catalog").Warn("skip invalid pack", slog.String("dir", dir), slog.Any("err", err))
			continue
		}
		for _, t := range m.Themes {
			c.AddTheme(t)
		}
		for _, s := range m.Stickers {
			if isLocalRef(s.URL) {
				s.URL = filepath.Join(dir, filepath.FromSlash(s.URL))
			}
			c.AddSticker(s)
		}
		loaded++
	}
	return loaded, nil
}
