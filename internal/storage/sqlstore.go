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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gocanvas/internal/domain"
)

// sqlStore is the JobStore shared by both backends.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

var _ JobStore = (*sqlStore)(nil)

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(q), args...)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func (s *sqlStore) Create(ctx context.Context, job domain.RenderJob) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	if job.Status == "" {
		job.Status = domain.JobRunning
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	_, err := s.exec(ctx, `INSERT INTO render_jobs (id, status, elements, frames, bytes, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Elements, job.Frames, job.Bytes, job.Error, millis(job.StartedAt), millis(job.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *sqlStore) finish(ctx context.Context, id, q string, args ...any) error {
	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) Finish(ctx context.Context, id string, frames int, bytes int64) error {
	return s.finish(ctx, id, `UPDATE render_jobs SET status = ?, frames = ?, bytes = ?, finished_at = ? WHERE id = ?`,
		string(domain.JobDone), frames, bytes, time.Now().UnixMilli(), id)
}

func (s *sqlStore) Fail(ctx context.Context, id string, msg string) error {
	return s.finish(ctx, id, `UPDATE render_jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(domain.JobFailed), msg, time.Now().UnixMilli(), id)
}

const jobColumns = `id, status, elements, frames, bytes, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (domain.RenderJob, error) {
	var (
		j               domain.RenderJob
		status          string
		started, finish int64
	)
	if err := r.Scan(&j.ID, &status, &j.Elements, &j.Frames, &j.Bytes, &j.Error, &started, &finish); err != nil {
		return j, err
	}
	j.Status = domain.JobStatus(status)
	j.StartedAt = fromMillis(started)
	j.FinishedAt = fromMillis(finish)
	return j, nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (domain.RenderJob, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+jobColumns+` FROM render_jobs WHERE id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	if err != nil {
		return j, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// List returns the most recent jobs first.
func (s *sqlStore) List(ctx context.Context, limit int) ([]domain.RenderJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`SELECT `+jobColumns+` FROM render_jobs ORDER BY started_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []domain.RenderJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error { return s.db.Close() }
