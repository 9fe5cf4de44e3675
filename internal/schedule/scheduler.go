// Package schedule provides the durable deferred-invocation primitive: a
// fire-and-forget After call backed by a Postgres table, and a Dispatcher
// that claims due rows and runs registered handlers with at-least-once
// delivery. Handlers must therefore be idempotent-safe; the batch processor
// achieves that through its atomic claim.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
)

// Records is the slice of the record store the scheduler needs.
type Records interface {
	InsertScheduledInvocation(ctx context.Context, arg db.InsertInvocationParams) (string, error)
	ClaimDueInvocation(ctx context.Context, lease time.Duration) (db.ScheduledInvocation, bool, error)
	DeleteScheduledInvocation(ctx context.Context, id string) error
}

// Scheduler enqueues deferred invocations.
type Scheduler struct {
	records Records
	now     func() time.Time
}

func NewScheduler(records Records) *Scheduler {
	return &Scheduler{records: records, now: time.Now}
}

// After schedules the handler registered under ref to run once the delay has
// passed. args is JSON-encoded into the invocation row. The call is
// fire-and-forget: it returns as soon as the row is durable.
func (s *Scheduler) After(ctx context.Context, delay time.Duration, ref string, args any) (string, error) {
	if delay < 0 {
		delay = 0
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("schedule: encode args: %w", err)
	}
	id, err := s.records.InsertScheduledInvocation(ctx, db.InsertInvocationParams{
		Ref:   ref,
		Args:  encoded,
		RunAt: s.now().Add(delay),
	})
	if err != nil {
		return "", fmt.Errorf("schedule: insert invocation: %w", err)
	}
	return id, nil
}
