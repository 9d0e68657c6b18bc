/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocanvas/internal/domain"
	"gocanvas/internal/scene"
	"gocanvas/internal/version"
)

// setupCLIEnv isolates config, data and working directories and returns the base dir.
func setupCLIEnv(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))
	t.Setenv("GCV_RENDER_TOKEN", "test-token")
	t.Setenv("GCV_LOG_LEVEL", "error")
	t.Setenv("GCV_TELEMETRY_OPT_IN", "")
	t.Chdir(base)
	return base
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeScene(t *testing.T, dir string) string {
	t.Helper()
	s := scene.New()
	s.AddText()
	s.EndEdit()
	path := filepath.Join(dir, "board.json")
	if err := s.WriteFile(path); err != nil {
		t.Fatalf("write scene: %v", err)
	}
	return path
}

// writeSmallVideoConfig keeps frame rendering cheap through the project override file.
func writeSmallVideoConfig(t *testing.T, dir string) {
	t.Helper()
	toml := "[canvas]\nwidth = 180\nheight = 160\n\n[video]\nwidth = 64\nheight = 36\nfps = 4\nframes = 3\n"
	if err := os.WriteFile(filepath.Join(dir, "gocanvas.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	setupCLIEnv(t)
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, version.String()) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestVersionCommand_Server(t *testing.T) {
	setupCLIEnv(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "9.9.9"})
	}))
	defer ts.Close()
	t.Setenv("GCV_RENDER_URL", ts.URL)
	out, err := runCLI(t, "version", "--server")
	if err != nil {
		t.Fatalf("version --server: %v", err)
	}
	if !strings.Contains(out, "render server 9.9.9") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestThemesAndStickers(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("GCV_THEME", "beach")
	out, err := runCLI(t, "themes")
	if err != nil {
		t.Fatalf("themes: %v", err)
	}
	for _, want := range []string{"White", "Mountains", "#B2EBF2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("themes output missing %q:\n%s", want, out)
		}
	}
	var marked bool
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Beach") && strings.Contains(line, "*") {
			marked = true
		}
	}
	if !marked {
		t.Fatalf("configured theme not marked:\n%s", out)
	}

	out, err = runCLI(t, "stickers")
	if err != nil {
		t.Fatalf("stickers: %v", err)
	}
	if !strings.Contains(out, "Heart") || !strings.Contains(out, "decorative") {
		t.Fatalf("stickers output:\n%s", out)
	}
}

func TestExportCommand(t *testing.T) {
	base := setupCLIEnv(t)
	writeSmallVideoConfig(t, base)
	path := writeScene(t, base)
	outDir := filepath.Join(base, "exports")

	out, err := runCLI(t, "export", path, "--format", "png,svg", "-o", outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, name := range []string{"canvas.png", "canvas.svg"} {
		p := filepath.Join(outDir, name)
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			t.Fatalf("missing %s: %v", p, err)
		}
		if !strings.Contains(out, p) {
			t.Fatalf("output should list %s:\n%s", p, out)
		}
	}

	if _, err := runCLI(t, "export", path, "--preset", "poster"); err == nil {
		t.Fatalf("expected unknown preset error")
	}
	if _, err := runCLI(t, "export", path, "--theme", "nope"); err == nil {
		t.Fatalf("expected unknown theme error")
	}
	if _, err := runCLI(t, "export", filepath.Join(base, "missing.json")); err == nil {
		t.Fatalf("expected missing scene error")
	}
}

func TestRenderCommand_Remote(t *testing.T) {
	base := setupCLIEnv(t)
	path := writeScene(t, base)
	writeSmallVideoConfig(t, base)
	var gotAuth string
	var gotElements int
	var gotVideo *domain.VideoSpec
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/render-video" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Elements []json.RawMessage `json:"elements"`
			Video    *domain.VideoSpec `json:"video"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotElements, gotVideo = len(body.Elements), body.Video
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("fake-mp4"))
	}))
	defer ts.Close()
	t.Setenv("GCV_RENDER_URL", ts.URL)

	outPath := filepath.Join(base, "videos", "board.mp4")
	out, err := runCLI(t, "render", path, "-o", outPath)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := os.ReadFile(outPath)
	if err != nil || string(b) != "fake-mp4" {
		t.Fatalf("video %q err=%v", b, err)
	}
	if gotAuth != "Bearer test-token" || gotElements != 1 {
		t.Fatalf("request auth=%q elements=%d", gotAuth, gotElements)
	}
	if gotVideo == nil || *gotVideo != (domain.VideoSpec{Width: 64, Height: 36, FPS: 4, DurationInFrames: 3}) {
		t.Fatalf("request video %+v does not match the configured video", gotVideo)
	}
	if !strings.Contains(out, "Wrote "+outPath) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderCommand_ServerError(t *testing.T) {
	base := setupCLIEnv(t)
	path := writeScene(t, base)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Failed to render video", "details": "ffmpeg exploded"})
	}))
	defer ts.Close()
	t.Setenv("GCV_RENDER_URL", ts.URL)

	_, err := runCLI(t, "render", path, "-o", filepath.Join(base, "x.mp4"))
	if err == nil || !strings.Contains(err.Error(), "ffmpeg exploded") {
		t.Fatalf("expected server details in error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(base, "x.mp4")); statErr == nil {
		t.Fatalf("no file should be written on failure")
	}
}

func TestRenderCommand_LocalFrames(t *testing.T) {
	base := setupCLIEnv(t)
	writeSmallVideoConfig(t, base)
	path := writeScene(t, base)
	zipPath := filepath.Join(base, "frames.zip")

	out, err := runCLI(t, "render", path, "--frames", zipPath)
	if err != nil {
		t.Fatalf("render --frames: %v", err)
	}
	if st, err := os.Stat(zipPath); err != nil || st.Size() == 0 {
		t.Fatalf("frames archive missing: %v", err)
	}
	if !strings.Contains(out, "Wrote 3 frames") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestJobsCommand_Remote(t *testing.T) {
	setupCLIEnv(t)
	start := time.Now().Add(-time.Minute)
	jobs := []domain.RenderJob{
		{ID: "job-done", Status: domain.JobDone, Elements: 2, Frames: 150, Bytes: 2048, StartedAt: start, FinishedAt: start.Add(3 * time.Second)},
		{ID: "job-failed", Status: domain.JobFailed, Elements: 1, Error: "boom", StartedAt: start},
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jobs)
	}))
	defer ts.Close()
	t.Setenv("GCV_RENDER_URL", ts.URL)

	out, err := runCLI(t, "jobs", "-n", "1")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "job-done") || strings.Contains(out, "job-failed") {
		t.Fatalf("limit not applied:\n%s", out)
	}
	if !strings.Contains(out, "2.0 kB") || !strings.Contains(out, "3s") {
		t.Fatalf("size or duration missing:\n%s", out)
	}
}

func TestJobsCommand_LocalStore(t *testing.T) {
	base := setupCLIEnv(t)
	out, err := runCLI(t, "jobs", "--dsn", filepath.Join(base, "jobs.sqlite"))
	if err != nil {
		t.Fatalf("jobs --dsn: %v", err)
	}
	if !strings.Contains(out, "No render jobs") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestJobRows(t *testing.T) {
	now := time.Now()
	rows := jobRows([]domain.RenderJob{{ID: "a", Status: domain.JobRunning, StartedAt: now.Add(-2 * time.Hour)}}, now)
	if len(rows) != 1 {
		t.Fatalf("rows: %v", rows)
	}
	r := rows[0]
	if r[1] != "running" || r[4] != "-" || r[6] != "-" || !strings.Contains(r[5], "ago") {
		t.Fatalf("unexpected row %v", r)
	}
}

func TestConfigCommands(t *testing.T) {
	base := setupCLIEnv(t)
	want := filepath.Join(base, "config", "gocanvas", "config.yaml")

	out, err := runCLI(t, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != want {
		t.Fatalf("config path = %q, want %q", strings.TrimSpace(out), want)
	}
	if _, err := runCLI(t, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init"); err == nil {
		t.Fatalf("second init without --overwrite should fail")
	}
	if _, err := runCLI(t, "config", "init", "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, err = runCLI(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "base_url:") || !strings.Contains(out, "render token: yes") {
		t.Fatalf("unexpected config show output:\n%s", out)
	}
}

func TestPackDir(t *testing.T) {
	base := setupCLIEnv(t)
	out, err := runCLI(t, "pack", "dir")
	if err != nil {
		t.Fatalf("pack dir: %v", err)
	}
	if strings.TrimSpace(out) != filepath.Join(base, "data", "gocanvas", "packs") {
		t.Fatalf("unexpected packs dir %q", out)
	}
	if _, err := runCLI(t, "pack", "install", filepath.Join(base, "missing.zip")); err == nil {
		t.Fatalf("expected error for missing pack")
	}
}

func TestPackExportThenInstall(t *testing.T) {
	base := setupCLIEnv(t)
	src := filepath.Join(base, "mypack")
	if err := os.MkdirAll(filepath.Join(src, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "assets", "moon.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"night","themes":[{"name":"Midnight","background":"#000020"}],` +
		`"stickers":[{"name":"Moon","url":"assets/moon.png","category":"sky"},{"name":"Sun","url":"https://example.com/sun.png"}]}`
	if err := os.WriteFile(filepath.Join(src, "pack.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	zipPath := filepath.Join(base, "night.zip")
	out, err := runCLI(t, "pack", "export", filepath.Join(src, "pack.json"), zipPath)
	if err != nil {
		t.Fatalf("pack export: %v", err)
	}
	if !strings.Contains(out, "1 themes, 1 files") {
		t.Fatalf("unexpected export output %q", out)
	}
	if _, err := runCLI(t, "pack", "install", zipPath); err != nil {
		t.Fatalf("pack install: %v", err)
	}
	out, err = runCLI(t, "stickers")
	if err != nil {
		t.Fatalf("stickers: %v", err)
	}
	if !strings.Contains(out, "Moon") {
		t.Fatalf("installed pack sticker missing:\n%s", out)
	}
	if _, err := runCLI(t, "pack", "export", filepath.Join(base, "missing.json"), zipPath); err == nil {
		t.Fatalf("expected error for missing manifest")
	}
}

func TestInvalidConfigFailsEarly(t *testing.T) {
	base := setupCLIEnv(t)
	if err := os.WriteFile(filepath.Join(base, "gocanvas.toml"), []byte("[video]\nfps = -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "themes"); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config error, got %v", err)
	}
	if _, err := runCLI(t, "config", "path"); err != nil {
		t.Fatalf("config path skips config load: %v", err)
	}
}
