// Package notify fans batch job progress notifications out to in-process
// subscribers. Postgres NOTIFY is the transport; a ticker-driven wake-all
// fallback guarantees eventual visibility even when a notification is lost
// across a listener reconnect.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
)

// Broker distributes job-id wakeups to subscribers. Wakeups are coalesced:
// a subscriber that has not drained its channel yet absorbs further wakeups
// without blocking the sender.
type Broker struct {
	logger       infra.Logger
	pollInterval time.Duration

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan struct{}
}

// BrokerOptions tune the broker. PollInterval bounds how stale a subscriber
// can observe the job when notifications are lost.
type BrokerOptions struct {
	PollInterval time.Duration
}

func NewBroker(logger infra.Logger, opts BrokerOptions) *Broker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Broker{
		logger:       logger,
		pollInterval: opts.PollInterval,
		subs:         make(map[string]map[int]chan struct{}),
	}
}

// Subscribe registers interest in one job's progress. The returned channel
// receives a wakeup whenever the job may have changed; callers re-read the
// record on every wakeup. cancel must be called to release the subscription.
func (b *Broker) Subscribe(jobID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan struct{})
	}
	b.subs[jobID][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if byID, ok := b.subs[jobID]; ok {
			delete(byID, id)
			if len(byID) == 0 {
				delete(b.subs, jobID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Wake nudges every subscriber of jobID without blocking.
func (b *Broker) Wake(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[jobID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// WakeAll nudges every subscriber of every job.
func (b *Broker) WakeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, byID := range b.subs {
		for _, ch := range byID {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Run attaches a pq listener to the progress channel and pumps
// notifications into subscriber wakeups until the context is cancelled.
func (b *Broker) Run(ctx context.Context, databaseURL string) error {
	listener := pq.NewListener(databaseURL, time.Second, 30*time.Second, func(event pq.ListenerEventType, err error) {
		switch event {
		case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
			b.logger.Warn().Err(err).Msg("notify: listener connection lost")
		case pq.ListenerEventReconnected:
			b.logger.Info().Msg("notify: listener reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(db.ProgressChannel); err != nil {
		return err
	}
	b.logger.Info().Str("channel", db.ProgressChannel).Msg("notify: listening")

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notification := <-listener.NotificationChannel():
			if notification == nil {
				// The listener dropped its connection; notifications sent
				// while reconnecting are gone, so wake everyone.
				b.WakeAll()
				continue
			}
			b.Wake(notification.Extra)
		case <-ticker.C:
			b.WakeAll()
		}
	}
}
