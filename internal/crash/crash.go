/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report plus a JSON dump of the
// scene that was open, then exits with status 2.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	applog "gocanvas/internal/log"
	"gocanvas/internal/telemetry"
	"gocanvas/internal/version"
)

// SceneDumper serializes the open scene. *scene.Store satisfies it.
type SceneDumper interface {
	MarshalJSON() ([]byte, error)
}

var exitFn = os.Exit

var (
	dirMu sync.Mutex
	dir   string
)

// SetDir sets where reports are written. Empty means the OS temp dir.
func SetDir(d string) {
	dirMu.Lock()
	dir = d
	dirMu.Unlock()
}

func reportDir() string {
	dirMu.Lock()
	defer dirMu.Unlock()
	if dir == "" {
		return os.TempDir()
	}
	return dir
}

// Recover must be deferred directly:
//
//	defer crash.Recover(store)
//
// scene may be nil.
func Recover(scene SceneDumper) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	stamp := time.Now().Format("20060102-150405")
	var scenePath string
	if scene != nil {
		p, err := dumpScene(scene, stamp)
		if err != nil {
			l.Error("scene dump failed", slog.Any("err", err))
		} else {
			scenePath = p
			l.Info("scene dump written", slog.String("path", p))
		}
	}
	reportPath, err := writeReport(r, stack, stamp, scenePath)
	if err != nil {
		l.Error("crash report failed", slog.Any("err", err))
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	if scenePath != "" {
		_, _ = fmt.Fprintf(os.Stderr, "Your canvas was saved to: %s\n", scenePath)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func dumpScene(scene SceneDumper, stamp string) (string, error) {
	data, err := scene.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal scene: %w", err)
	}
	d := reportDir()
	if err := os.MkdirAll(d, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(d, fmt.Sprintf("scene-%s.json", stamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func writeReport(panicVal any, stack []byte, stamp, scenePath string) (string, error) {
	d := reportDir()
	_ = os.MkdirAll(d, 0o755)
	path := filepath.Join(d, fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "gocanvas crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if scenePath != "" {
		_, _ = fmt.Fprintf(&buf, "Scene: %s\n", scenePath)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("close crash report", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
