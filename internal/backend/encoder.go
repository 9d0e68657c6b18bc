/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"gocanvas/internal/domain"
)

// Encoder turns a stream of concatenated PNG frames into a video file.
type Encoder interface {
	Encode(ctx context.Context, spec domain.VideoSpec, frames io.Reader, outPath string) error
	// Available reports whether the encoder can run on this host.
	Available() error
}

// FFmpegEncoder drives the ffmpeg binary with image2pipe input and h264
// output.
type FFmpegEncoder struct {
	Binary string
}

var commandContext = exec.CommandContext

func (e FFmpegEncoder) binary() string {
	if strings.TrimSpace(e.Binary) == "" {
		return "ffmpeg"
	}
	return e.Binary
}

// Available resolves the binary on PATH.
func (e FFmpegEncoder) Available() error {
	if _, err := exec.LookPath(e.binary()); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	return nil
}

// Args returns the ffmpeg argument list for spec writing to outPath.
func (e FFmpegEncoder) Args(spec domain.VideoSpec, outPath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(spec.FPS),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	}
}

func (e FFmpegEncoder) Encode(ctx context.Context, spec domain.VideoSpec, frames io.Reader, outPath string) error {
	if spec.FPS <= 0 {
		return errors.New("ffmpeg: fps must be positive")
	}
	cmd := commandContext(ctx, e.binary(), e.Args(spec, outPath)...) //nolint:gosec
	cmd.Stdin = frames
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
