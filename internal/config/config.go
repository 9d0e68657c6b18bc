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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// A gocanvas.toml in the working directory may override it per project, and
// environment variables are read-only overrides applied last.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in" toml:"telemetry_opt_in"`
	Theme          string `yaml:"theme" toml:"theme"` // catalog theme name used for export backgrounds
}

// CanvasConfig describes the virtual canvas in canvas units.
type CanvasConfig struct {
	Width       int     `yaml:"width" toml:"width"`
	Height      int     `yaml:"height" toml:"height"`
	InitialZoom float64 `yaml:"initial_zoom" toml:"initial_zoom"`
	ZoomLocked  bool    `yaml:"zoom_locked" toml:"zoom_locked"`
	Snapping    bool    `yaml:"snapping" toml:"snapping"` // snap dragged elements to guides
}

// VideoConfig is shared by the preview player and the render server.
type VideoConfig struct {
	Width  int `yaml:"width" toml:"width"`
	Height int `yaml:"height" toml:"height"`
	FPS    int `yaml:"fps" toml:"fps"`
	Frames int `yaml:"frames" toml:"frames"`
}

type RenderConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"` // empty or "mdns" resolves via service discovery
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`
	Addr      string `yaml:"addr" toml:"addr"`
	OutDir    string `yaml:"out_dir" toml:"out_dir"`
	FFmpeg    string `yaml:"ffmpeg" toml:"ffmpeg"`
	Advertise bool   `yaml:"advertise" toml:"advertise"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type StorageConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"` // sqlite file path or postgres:// URL
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Source bool   `yaml:"source" toml:"source"`
	File   string `yaml:"file" toml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version" toml:"config_version"`
	General       GeneralConfig `yaml:"general" toml:"general"`
	Canvas        CanvasConfig  `yaml:"canvas" toml:"canvas"`
	Video         VideoConfig   `yaml:"video" toml:"video"`
	Render        RenderConfig  `yaml:"render" toml:"render"`
	Storage       StorageConfig `yaml:"storage" toml:"storage"`
	Logging       LoggingConfig `yaml:"logging" toml:"logging"`
}

// ProjectFileName is the optional per-directory override file.
const ProjectFileName = "gocanvas.toml"

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Theme: "White"},
		Canvas:        CanvasConfig{Width: 1800, Height: 1600, InitialZoom: 0.4},
		Video:         VideoConfig{Width: 1920, Height: 1080, FPS: 30, Frames: 150},
		Render: RenderConfig{
			BaseURL:   "http://localhost:3001",
			TimeoutMs: 300000,
			Addr:      ":3001",
			OutDir:    "out",
			FFmpeg:    "ffmpeg",
		},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Env var names used as overrides.
const (
	EnvTheme           = "GCV_THEME"
	EnvTelemetryOptIn  = "GCV_TELEMETRY_OPT_IN"
	EnvZoomLocked      = "GCV_ZOOM_LOCKED"
	EnvSnapping        = "GCV_SNAPPING"
	EnvRenderURL       = "GCV_RENDER_URL"
	EnvRenderTimeoutMs = "GCV_RENDER_TIMEOUT_MS"
	EnvRenderAddr      = "GCV_RENDER_ADDR"
	EnvRenderOutDir    = "GCV_RENDER_OUT_DIR"
	EnvFFmpeg          = "GCV_FFMPEG"
	EnvRenderToken     = "GCV_RENDER_TOKEN"
	EnvStorageDSN      = "GCV_STORAGE_DSN"
	EnvLogLevel        = "GCV_LOG_LEVEL"
	EnvLogFormat       = "GCV_LOG_FORMAT"
	EnvLogSource       = "GCV_LOG_SOURCE"
	EnvLogFile         = "GCV_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "gocanvas"
	keyringToken   = "render_token"
)

// tokenStore abstracts the keyring so tests can stub it.
var tokenStore TokenStore = &osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := userDir("config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns the per-user directory for the render job database and crash reports.
func DataDir() (string, error) { return userDir("data") }

// PacksDir is where installed theme and sticker packs live.
func PacksDir() (string, error) { return dataSub("packs") }

// CrashDir is where crash reports and scene dumps are written.
func CrashDir() (string, error) { return dataSub("crash") }

func dataSub(name string) (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, name), nil
}

func userDir(kind string) (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoCanvas")
	default:
		if kind == "data" {
			if x := os.Getenv("XDG_DATA_HOME"); x != "" {
				return filepath.Join(x, "gocanvas"), nil
			}
			base = filepath.Join(os.Getenv("HOME"), ".local", "share", "gocanvas")
		} else {
			if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
				return filepath.Join(x, "gocanvas"), nil
			}
			base = filepath.Join(os.Getenv("HOME"), ".config", "gocanvas")
		}
	}
	if !filepath.IsAbs(base) {
		return "", errors.New("cannot resolve user directory")
	}
	return base, nil
}

// Load reads the user config, the project override in the working directory,
// and environment overrides, in that order. The render token comes from the
// environment or the keyring and is returned separately.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	if err := applyProjectFile(&cfg, ProjectFileName); err != nil {
		return cfg, "", err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	return cfg, loadToken(), nil
}

func loadToken() string {
	if v := strings.TrimSpace(os.Getenv(EnvRenderToken)); v != "" {
		return v
	}
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return tok
}

// applyProjectFile overlays a TOML file onto cfg. Only keys present in the
// file change; a missing file is not an error.
func applyProjectFile(cfg *AppConfig, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// ForgetToken removes the render token from the keyring.
func ForgetToken() error { return tokenStore.Delete(keyringService, keyringToken) }

// Validate rejects values that would make the canvas or video pipeline misbehave.
func (c AppConfig) Validate() error {
	switch {
	case c.Canvas.Width <= 0 || c.Canvas.Height <= 0:
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	case c.Canvas.InitialZoom <= 0:
		return fmt.Errorf("canvas initial_zoom must be positive, got %v", c.Canvas.InitialZoom)
	case c.Video.Width <= 0 || c.Video.Height <= 0:
		return fmt.Errorf("video size must be positive, got %dx%d", c.Video.Width, c.Video.Height)
	case c.Video.FPS <= 0 || c.Video.Frames <= 0:
		return fmt.Errorf("video fps and frames must be positive, got %d/%d", c.Video.FPS, c.Video.Frames)
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if strings.TrimSpace(src.General.Theme) != "" {
		dst.General.Theme = strings.TrimSpace(src.General.Theme)
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.Canvas.ZoomLocked = src.Canvas.ZoomLocked
	dst.Canvas.Snapping = src.Canvas.Snapping
	dst.Render.Advertise = src.Render.Advertise
	if src.Canvas.Width > 0 {
		dst.Canvas.Width = src.Canvas.Width
	}
	if src.Canvas.Height > 0 {
		dst.Canvas.Height = src.Canvas.Height
	}
	if src.Canvas.InitialZoom > 0 {
		dst.Canvas.InitialZoom = src.Canvas.InitialZoom
	}
	if src.Video.Width > 0 {
		dst.Video.Width = src.Video.Width
	}
	if src.Video.Height > 0 {
		dst.Video.Height = src.Video.Height
	}
	if src.Video.FPS > 0 {
		dst.Video.FPS = src.Video.FPS
	}
	if src.Video.Frames > 0 {
		dst.Video.Frames = src.Video.Frames
	}
	if src.Render.BaseURL != "" {
		dst.Render.BaseURL = src.Render.BaseURL
	}
	if src.Render.TimeoutMs != 0 {
		dst.Render.TimeoutMs = src.Render.TimeoutMs
	}
	if src.Render.Addr != "" {
		dst.Render.Addr = src.Render.Addr
	}
	if src.Render.OutDir != "" {
		dst.Render.OutDir = src.Render.OutDir
	}
	if src.Render.FFmpeg != "" {
		dst.Render.FFmpeg = src.Render.FFmpeg
	}
	if src.Storage.DSN != "" {
		dst.Storage.DSN = src.Storage.DSN
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTheme)); v != "" {
		cfg.General.Theme = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvZoomLocked)); v != "" {
		cfg.Canvas.ZoomLocked = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvSnapping)); v != "" {
		cfg.Canvas.Snapping = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderURL)); v != "" {
		cfg.Render.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderAddr)); v != "" {
		cfg.Render.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderOutDir)); v != "" {
		cfg.Render.OutDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFFmpeg)); v != "" {
		cfg.Render.FFmpeg = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"general.theme":            EnvTheme,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"canvas.zoom_locked":       EnvZoomLocked,
	"canvas.snapping":          EnvSnapping,
	"render.base_url":          EnvRenderURL,
	"render.timeout_ms":        EnvRenderTimeoutMs,
	"render.addr":              EnvRenderAddr,
	"render.out_dir":           EnvRenderOutDir,
	"render.ffmpeg":            EnvFFmpeg,
	"storage.dsn":              EnvStorageDSN,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// EffectiveTimeout returns the render request timeout.
func (r RenderConfig) EffectiveTimeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return time.Duration(Defaults().Render.TimeoutMs) * time.Millisecond
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}
