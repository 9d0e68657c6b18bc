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
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gocanvas/internal/domain"
	applog "gocanvas/internal/log"
)

// ProgressEvent is one update on the progress stream.
type ProgressEvent struct {
	JobID  string           `json:"jobId"`
	Status domain.JobStatus `json:"status"`
	Frame  int              `json:"frame"`
	Total  int              `json:"total"`
	Error  string           `json:"error,omitempty"`
}

// Hub fans progress events out to subscribers. Slow subscribers drop events
// rather than stall the render.
type Hub struct {
	mu   sync.Mutex
	subs map[chan ProgressEvent]string // channel -> job filter
}

// NewHub returns an empty hub.
func NewHub() *Hub { return &Hub{subs: map[chan ProgressEvent]string{}} }

// Subscribe registers a listener for jobID ("" for all jobs). The returned
// func unsubscribes and closes the channel.
func (h *Hub) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 32)
	h.mu.Lock()
	h.subs[ch] = jobID
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every matching subscriber without blocking.
func (h *Hub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, filter := range h.subs {
		if filter != "" && filter != ev.JobID {
			continue
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serveProgress upgrades to a websocket and streams events until either side
// goes away.
func (h *Hub) serveProgress(w http.ResponseWriter, r *http.Request) {
	l := applog.WithOperation(applog.WithComponent("backend"), "progress")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Debug("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.Subscribe(r.URL.Query().Get("job"))
	defer unsubscribe()

	// The reader only watches for the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				l.Debug("write failed", "err", err)
				return
			}
		}
	}
}
