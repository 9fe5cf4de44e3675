package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
)

// HandlerFunc runs one claimed invocation. Returning an error does not
// requeue the row; handlers own their retry semantics.
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

// DispatcherOptions tune the claim loop.
type DispatcherOptions struct {
	PollInterval time.Duration
	Lease        time.Duration
	MaxAttempts  int
}

// Dispatcher polls for due invocations and runs their handlers. Rows are
// deleted once the handler returns; a dispatcher crash mid-run leaves the
// row leased, and it re-fires after the lease expires. Rows claimed more
// than MaxAttempts times are dropped as poison.
type Dispatcher struct {
	records      Records
	logger       infra.Logger
	pollInterval time.Duration
	lease        time.Duration
	maxAttempts  int

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher(records Records, logger infra.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Lease <= 0 {
		opts.Lease = 2 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Dispatcher{
		records:      records,
		logger:       logger,
		pollInterval: opts.PollInterval,
		lease:        opts.Lease,
		maxAttempts:  opts.MaxAttempts,
		handlers:     make(map[string]HandlerFunc),
	}
}

// Register associates ref with a handler. Registration after Run has started
// is safe.
func (d *Dispatcher) Register(ref string, handler HandlerFunc) {
	d.mu.Lock()
	d.handlers[ref] = handler
	d.mu.Unlock()
}

// Run claims and executes invocations until the context is cancelled. When a
// claim finds work it immediately claims again; it sleeps for the poll
// interval only when the queue is drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Msg("dispatcher: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ran, err := d.runOnce(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("dispatcher: claim failed")
		}
		if ran {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// runOnce claims at most one due invocation and runs it. It reports whether
// an invocation was claimed.
func (d *Dispatcher) runOnce(ctx context.Context) (bool, error) {
	inv, ok, err := d.records.ClaimDueInvocation(ctx, d.lease)
	if err != nil || !ok {
		return false, err
	}

	if inv.Attempts > d.maxAttempts {
		d.logger.Error().
			Str("invocation_id", inv.ID).
			Str("ref", inv.Ref).
			Int("attempts", inv.Attempts).
			Msg("dispatcher: dropping poison invocation")
		return true, d.records.DeleteScheduledInvocation(ctx, inv.ID)
	}

	d.mu.RLock()
	handler, registered := d.handlers[inv.Ref]
	d.mu.RUnlock()
	if !registered {
		d.logger.Error().
			Str("invocation_id", inv.ID).
			Str("ref", inv.Ref).
			Msg("dispatcher: no handler registered")
		return true, d.records.DeleteScheduledInvocation(ctx, inv.ID)
	}

	if err := handler(ctx, inv.Args); err != nil {
		d.logger.Error().
			Err(err).
			Str("invocation_id", inv.ID).
			Str("ref", inv.Ref).
			Msg("dispatcher: handler failed")
	}
	return true, d.records.DeleteScheduledInvocation(ctx, inv.ID)
}
