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
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"gocanvas/internal/catalog"
	"gocanvas/internal/config"
	"gocanvas/internal/crash"
	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
	"gocanvas/internal/telemetry"
)

type commandContext struct {
	logLevel *string

	configOnce sync.Once
	config     *config.AppConfig
	token      string
	configErr  error
}

func newCommandContext(logLevel *string) *commandContext {
	return &commandContext{logLevel: logLevel}
}

// ensureConfig loads the configuration once and wires logging, telemetry
// and crash reports from it.
func (c *commandContext) ensureConfig() (*config.AppConfig, error) {
	c.configOnce.Do(func() {
		cfg, token, err := config.Load()
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		level := cfg.Logging.Level
		if c.logLevel != nil && strings.TrimSpace(*c.logLevel) != "" {
			level = *c.logLevel
		}
		applog.Init(applog.Options{
			Level:     level,
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.Source,
			File:      cfg.Logging.File,
		})

		tcfg := telemetry.FromEnv()
		tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
		telemetry.NewDefault(tcfg)

		if dir, err := config.CrashDir(); err == nil {
			crash.SetDir(dir)
		}
		applog.WithComponent("cli").Debug("config loaded",
			slog.String("render_url", cfg.Render.BaseURL),
			slog.Bool("telemetry", tcfg.OptIn))
		c.config = &cfg
		c.token = token
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.AppConfig {
	cfg, _ := c.ensureConfig()
	return cfg
}

// loadCatalog returns the built-in catalog plus installed packs.
func (c *commandContext) loadCatalog() *catalog.Catalog {
	cat := catalog.New()
	dir, err := config.PacksDir()
	if err != nil {
		return cat
	}
	if _, err := catalog.LoadPacks(cat, dir); err != nil {
		applog.WithComponent("cli").Warn("load packs", slog.String("dir", dir), slog.Any("err", err))
	}
	return cat
}

func videoSpec(cfg *config.AppConfig) domain.VideoSpec {
	v := cfg.Video
	return domain.VideoSpec{Width: v.Width, Height: v.Height, FPS: v.FPS, DurationInFrames: v.Frames}
}

func canvasSize(cfg *config.AppConfig) domain.Size {
	return domain.Size{Width: float64(cfg.Canvas.Width), Height: float64(cfg.Canvas.Height)}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
