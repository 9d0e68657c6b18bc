/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// isolate points the config lookup at a temp dir and stubs the keyring.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "cfg"))
	t.Setenv("AppData", dir)
	t.Chdir(dir)
	old := tokenStore
	tokenStore = newMemoryStore()
	t.Cleanup(func() { tokenStore = old })
	return dir
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	isolate(t)
	cfg, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected empty token, got %q", tok)
	}
	if cfg.Canvas.Width != 1800 || cfg.Canvas.Height != 1600 {
		t.Fatalf("unexpected canvas defaults: %+v", cfg.Canvas)
	}
	if cfg.Video.Frames != 150 || cfg.Video.FPS != 30 {
		t.Fatalf("unexpected video defaults: %+v", cfg.Video)
	}
	if cfg.Canvas.InitialZoom != 0.4 {
		t.Fatalf("initial zoom = %v, want 0.4", cfg.Canvas.InitialZoom)
	}
}

func TestEnvOverridesRenderURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvRenderURL, "https://render.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Render.BaseURL, "https://render.test:8443"; got != want {
		t.Fatalf("Render.BaseURL = %q, want %q", got, want)
	}
	if name, ok := EnvOverrideFor("render.base_url"); !ok || name != EnvRenderURL {
		t.Fatalf("EnvOverrideFor = %q,%v", name, ok)
	}
}

func TestEnvOverridesTelemetry(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
}

func TestSnappingOffByDefault(t *testing.T) {
	isolate(t)
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Canvas.Snapping {
		t.Fatalf("snapping should default to off")
	}
	t.Setenv(EnvSnapping, "on")
	if cfg, _, _ = Load(); !cfg.Canvas.Snapping {
		t.Fatalf("expected %s to enable snapping", EnvSnapping)
	}
}

func TestSaveThenLoadRoundTripsYAMLAndToken(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.General.Theme = "Beach"
	cfg.Canvas.ZoomLocked = true
	cfg.Render.Advertise = true
	if err := Save(cfg, "secret-token"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.General.Theme != "Beach" || !got.Canvas.ZoomLocked || !got.Render.Advertise {
		t.Fatalf("saved values not loaded: %+v", got)
	}
	if tok != "secret-token" {
		t.Fatalf("token = %q", tok)
	}
	if err := ForgetToken(); err != nil {
		t.Fatalf("ForgetToken: %v", err)
	}
	if _, tok, _ = Load(); tok != "" {
		t.Fatalf("token should be gone, got %q", tok)
	}
}

func TestEnvTokenWinsOverKeyring(t *testing.T) {
	isolate(t)
	_ = tokenStore.Set(keyringService, keyringToken, "from-keyring")
	t.Setenv(EnvRenderToken, "from-env")
	if _, tok, _ := Load(); tok != "from-env" {
		t.Fatalf("token = %q, want from-env", tok)
	}
}

func TestProjectTOMLOverridesOnlyPresentKeys(t *testing.T) {
	dir := isolate(t)
	toml := "[video]\nfps = 24\n\n[render]\nout_dir = \"renders\"\n"
	if err := os.WriteFile(filepath.Join(dir, ProjectFileName), []byte(toml), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Video.FPS != 24 || cfg.Render.OutDir != "renders" {
		t.Fatalf("toml not applied: %+v %+v", cfg.Video, cfg.Render)
	}
	if cfg.Video.Frames != 150 || cfg.Render.FFmpeg != "ffmpeg" {
		t.Fatalf("absent keys were clobbered: %+v %+v", cfg.Video, cfg.Render)
	}
}

func TestProjectTOMLParseErrorIsReported(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ProjectFileName), []byte("[video\nfps="), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateRejectsBadVideo(t *testing.T) {
	cfg := Defaults()
	cfg.Video.FPS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero fps")
	}
	cfg = Defaults()
	cfg.Canvas.InitialZoom = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative zoom")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "DEBUG"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/gcv.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/gcv.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "/var/log/gcv.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "/var/log/gcv.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestEffectiveTimeout(t *testing.T) {
	if d := (RenderConfig{TimeoutMs: 1500}).EffectiveTimeout(); d != 1500*time.Millisecond {
		t.Fatalf("timeout = %v", d)
	}
	if d := (RenderConfig{}).EffectiveTimeout(); d != 300*time.Second {
		t.Fatalf("default timeout = %v", d)
	}
}

func TestDataSubdirectories(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG layout only")
	}
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	packs, err := PacksDir()
	if err != nil || packs != filepath.Join(dir, "gocanvas", "packs") {
		t.Fatalf("PacksDir: %q %v", packs, err)
	}
	crash, err := CrashDir()
	if err != nil || crash != filepath.Join(dir, "gocanvas", "crash") {
		t.Fatalf("CrashDir: %q %v", crash, err)
	}
}
