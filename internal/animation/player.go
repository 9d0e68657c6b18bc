/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package animation

import (
	"context"
	"sync"
	"time"

	"gocanvas/internal/domain"
)

// FrameFunc receives every displayed frame.
type FrameFunc func(frame int, visuals []Visual)

// Player steps through the animation of a live scene on a ticker at the video
// frame rate. The scene is re-read on every frame so edits show up while
// playing.
type Player struct {
	mu      sync.Mutex
	spec    domain.VideoSpec
	source  func() []domain.CanvasElement
	onFrame FrameFunc
	frame   int
	loop    bool
	stop    chan struct{}
}

// NewPlayer returns a paused player at frame 0 that loops by default.
func NewPlayer(spec domain.VideoSpec, source func() []domain.CanvasElement, onFrame FrameFunc) *Player {
	if spec.FPS <= 0 || spec.DurationInFrames <= 0 {
		spec = DefaultVideo
	}
	return &Player{spec: spec, source: source, onFrame: onFrame, loop: true}
}

// Frame returns the current frame.
func (p *Player) Frame() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Playing reports whether the ticker is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

// SetLoop controls whether playback wraps to frame 0 at the end.
func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	p.loop = loop
	p.mu.Unlock()
}

// Seek moves to frame, clamped to the duration, and emits it.
func (p *Player) Seek(frame int) {
	p.mu.Lock()
	p.frame = min(max(frame, 0), p.spec.DurationInFrames-1)
	f := p.frame
	p.mu.Unlock()
	p.emit(f)
}

// Step advances one frame and emits it. At the end it wraps when looping;
// otherwise playback stops once the last frame is shown. It reports whether
// playback should continue.
func (p *Player) Step() bool {
	p.mu.Lock()
	last := p.spec.DurationInFrames - 1
	next := p.frame + 1
	if next > last {
		next = 0
		if !p.loop {
			next = last
		}
	}
	cont := true
	if !p.loop && next == last {
		cont = false
		p.haltLocked()
	}
	p.frame = next
	p.mu.Unlock()
	p.emit(next)
	return cont
}

// Play starts the ticker. It is a no-op while already playing. Playback ends
// on Pause, on ctx cancellation, or at the last frame when not looping.
func (p *Player) Play(ctx context.Context) {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	go func() {
		t := time.NewTicker(p.spec.FrameInterval())
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				p.Pause()
				return
			case <-stop:
				return
			case <-t.C:
				if !p.Step() {
					return
				}
			}
		}
	}()
}

// Pause stops the ticker and keeps the current frame.
func (p *Player) Pause() {
	p.mu.Lock()
	p.haltLocked()
	p.mu.Unlock()
}

func (p *Player) haltLocked() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *Player) emit(frame int) {
	if p.onFrame == nil {
		return
	}
	var els []domain.CanvasElement
	if p.source != nil {
		els = p.source()
	}
	p.onFrame(frame, Render(els, frame))
}
