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
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gocanvas/internal/backend"
	applog "gocanvas/internal/log"
	"gocanvas/internal/storage"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr, outDir, dsn string
	var advertise bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the video render server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Render.Addr
			}
			if !cmd.Flags().Changed("out") {
				outDir = cfg.Render.OutDir
			}
			if !cmd.Flags().Changed("advertise") {
				advertise = cfg.Render.Advertise
			}
			if strings.TrimSpace(dsn) == "" {
				dsn = cfg.Storage.DSN
			}
			if strings.TrimSpace(dsn) == "" {
				dsn = storage.DefaultSQLitePath()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			jobs, err := storage.Open(runCtx, dsn)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer func() { _ = jobs.Close() }()

			enc := backend.FFmpegEncoder{Binary: cfg.Render.FFmpeg}
			if err := enc.Available(); err != nil {
				applog.WithComponent("cli").Warn("encoder not available; renders will fail until it is installed", slog.Any("err", err))
			}
			srv, err := backend.NewServer(backend.ServerConfig{
				Addr:      addr,
				OutDir:    outDir,
				Token:     ctx.token,
				Advertise: advertise,
				Video:     videoSpec(cfg),
				Canvas:    canvasSize(cfg),
				Theme:     ctx.loadCatalog().ThemeOrDefault(cfg.General.Theme),
			}, jobs, enc)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(runCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory for rendered videos (default from config)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Job store: sqlite file path or postgres:// URL")
	cmd.Flags().BoolVar(&advertise, "advertise", false, "Advertise the server over mDNS")
	return cmd
}
