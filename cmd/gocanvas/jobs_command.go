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
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gocanvas/internal/backend"
	"gocanvas/internal/domain"
	"gocanvas/internal/storage"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var dsn string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent render jobs",
		Long: "Jobs lists render jobs from the render server. With --dsn the job store\n" +
			"is read directly, which works while the server is down.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var jobs []domain.RenderJob
			if strings.TrimSpace(dsn) != "" {
				store, err := storage.Open(cmd.Context(), dsn)
				if err != nil {
					return fmt.Errorf("open job store: %w", err)
				}
				defer func() { _ = store.Close() }()
				jobs, err = store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
			} else {
				client := backend.NewClient(cfg.Render.BaseURL, ctx.token, cfg.Render.EffectiveTimeout())
				jobs, err = client.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && len(jobs) > limit {
					jobs = jobs[:limit]
				}
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No render jobs")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Elements", "Frames", "Size", "Started", "Took", "Error"},
				jobRows(jobs, time.Now()),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Read jobs from this store instead of the server")
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultListLimit, "Maximum number of jobs")
	return cmd
}

func jobRows(jobs []domain.RenderJob, now time.Time) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		size, took := "-", "-"
		if j.Bytes > 0 {
			size = humanize.Bytes(uint64(j.Bytes))
		}
		if !j.FinishedAt.IsZero() {
			took = j.FinishedAt.Sub(j.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			j.ID,
			string(j.Status),
			strconv.Itoa(j.Elements),
			strconv.Itoa(j.Frames),
			size,
			humanize.RelTime(j.StartedAt, now, "ago", "from now"),
			took,
			j.Error,
		})
	}
	return rows
}
