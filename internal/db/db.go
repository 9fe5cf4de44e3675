// Package db is the durable record store for batch jobs, generated assets,
// generation credentials, and scheduled invocations. Every mutation is a
// single atomic SQL statement so overlapping worker invocations cannot lose
// updates; progress-affecting mutations also emit a NOTIFY on the
// batch_job_progress channel for live subscribers.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProgressChannel is the Postgres NOTIFY channel carrying batch job ids
// whenever a job's progress or status changes.
const ProgressChannel = "batch_job_progress"

type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
