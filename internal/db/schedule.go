package db

import (
	"context"
	"encoding/json"
	"time"
)

// ScheduledInvocation is one pending unit of deferred work: run the handler
// registered under Ref with Args once run_at has passed. Attempts counts how
// many times the row has been claimed, so poison rows can be dropped.
type ScheduledInvocation struct {
	ID       string
	Ref      string
	Args     json.RawMessage
	Attempts int
}

type InsertInvocationParams struct {
	Ref   string
	Args  json.RawMessage
	RunAt time.Time
}

func (q *Queries) InsertScheduledInvocation(ctx context.Context, arg InsertInvocationParams) (string, error) {
	args := arg.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	row := q.db.QueryRow(ctx, `
INSERT INTO scheduled_invocations (ref, args, run_at)
VALUES ($1, $2, $3)
RETURNING id
`, arg.Ref, args, arg.RunAt)
	var id string
	err := row.Scan(&id)
	return id, err
}

// ClaimDueInvocation picks the oldest due row, skipping rows other
// dispatchers hold, and leases it for the given duration. A dispatcher that
// crashes mid-run leaves the row to re-fire after the lease expires, which
// is what gives the scheduler its at-least-once delivery.
func (q *Queries) ClaimDueInvocation(ctx context.Context, lease time.Duration) (ScheduledInvocation, bool, error) {
	row := q.db.QueryRow(ctx, `
WITH due AS (
    SELECT id
    FROM scheduled_invocations
    WHERE run_at <= now()
      AND (locked_until IS NULL OR locked_until <= now())
    ORDER BY run_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE scheduled_invocations
SET locked_until = now() + make_interval(secs => $1),
    attempts = attempts + 1
WHERE id IN (SELECT id FROM due)
RETURNING id, ref, args, attempts
`, lease.Seconds())
	var inv ScheduledInvocation
	if err := row.Scan(&inv.ID, &inv.Ref, &inv.Args, &inv.Attempts); err != nil {
		if isNoRows(err) {
			return ScheduledInvocation{}, false, nil
		}
		return ScheduledInvocation{}, false, err
	}
	// Args bytes come from the driver's buffer; detach them.
	inv.Args = append(json.RawMessage(nil), inv.Args...)
	return inv, true, nil
}

func (q *Queries) DeleteScheduledInvocation(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `
DELETE FROM scheduled_invocations
WHERE id = $1
`, id)
	return err
}
