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
	"errors"
	"fmt"
)

var (
	// ErrRenderInFlight is returned by Client.Render while another
	// request from the same client is outstanding.
	ErrRenderInFlight = errors.New("a render is already in progress")
	// ErrInvalidRequest marks a render request rejected by validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRenderBusy marks a request refused because the server is rendering.
	ErrRenderBusy = errors.New("render server busy")
)

// ErrorBody is the JSON error payload of the render endpoint.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RenderError is a non-2xx answer from the render server.
type RenderError struct {
	Status  int
	Message string
	Details string
}

func (e *RenderError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("render failed (%d): %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("render failed (%d): %s", e.Status, e.Message)
}

// Is lets errors.Is match the server-side sentinels by status.
func (e *RenderError) Is(target error) bool {
	switch target {
	case ErrInvalidRequest:
		return e.Status == 400
	case ErrRenderBusy:
		return e.Status == 409
	}
	return false
}
