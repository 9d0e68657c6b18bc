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

	"github.com/spf13/cobra"

	"gocanvas/internal/backend"
	"gocanvas/internal/version"
)

func newVersionCommand(ctx *commandContext) *cobra.Command {
	var server bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gocanvas %s\n", version.String())
			if !server {
				return nil
			}
			cfg := ctx.configValue()
			client := backend.NewClient(cfg.Render.BaseURL, ctx.token, cfg.Render.EffectiveTimeout())
			v, err := client.Version(cmd.Context())
			if err != nil {
				return fmt.Errorf("query render server: %w", err)
			}
			fmt.Fprintf(out, "render server %s\n", v)
			return nil
		},
	}
	cmd.Flags().BoolVar(&server, "server", false, "Also query the render server version")
	return cmd
}
