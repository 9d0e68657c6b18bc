/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"strings"

	"gocanvas/internal/domain"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// JobStore records render jobs.
type JobStore interface {
	Create(ctx context.Context, job domain.RenderJob) error
	Finish(ctx context.Context, id string, frames int, bytes int64) error
	Fail(ctx context.Context, id string, msg string) error
	Get(ctx context.Context, id string) (domain.RenderJob, error)
	List(ctx context.Context, limit int) ([]domain.RenderJob, error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultListLimit applies when List gets a non-positive limit.
const DefaultListLimit = 50

// IsPostgresDSN reports whether dsn selects the Postgres backend.
func IsPostgresDSN(dsn string) bool {
	d := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://")
}

// Open returns a Postgres store for postgres:// DSNs and a SQLite store for
// everything else, treating dsn as a database file path.
func Open(ctx context.Context, dsn string) (JobStore, error) {
	if IsPostgresDSN(dsn) {
		return OpenPostgres(ctx, dsn)
	}
	return OpenSQLite(ctx, dsn)
}
