// Package pipeline is the in-process pub/sub channel behind the /pipeline
// SSE endpoint: ingested master activity is fanned out to subscribed
// operator clients with bounded buffers and drop-on-stall delivery.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/telemetry"
)

// Event names pushed over the pipeline.
const (
	EventPing         = "ping"
	EventUpdateMinion = "update_minion"
	EventNewEvent     = "new_event"
	EventNewJob       = "new_job"
	EventNewJobReturn = "new_job_return"
)

const (
	// queueSize bounds each subscriber's undelivered backlog.
	queueSize = 100

	// pingInterval is the liveness probe period. A subscriber that cannot
	// absorb a ping is dropped; TCP half-open detection is not assumed.
	pingInterval = 10 * time.Second
)

// Message is one event frame to deliver.
type Message struct {
	Event string
	Data  string
}

type subscriber struct {
	userID string
	ch     chan Message
	stale  bool
}

// Broadcaster fans messages out to subscribers. The mutex guards only the
// subscriber map and queue operations; sends are non-blocking, so no
// network I/O ever happens under the lock.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

// Subscription is one client's attachment to the broadcaster.
type Subscription struct {
	b   *Broadcaster
	sub *subscriber
}

// Messages returns the delivery channel. It is closed when the
// subscription is closed or the subscriber is dropped for falling behind.
func (s *Subscription) Messages() <-chan Message {
	return s.sub.ch
}

// Close detaches the subscription.
func (s *Subscription) Close() {
	s.b.remove(s.sub)
}

// Subscribe attaches a client and returns its subscription.
func (b *Broadcaster) Subscribe(userID string) *Subscription {
	sub := &subscriber{userID: userID, ch: make(chan Message, queueSize)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()
	telemetry.PipelineSubscribers.Set(float64(n))
	logger.Debugw("pipeline subscriber attached", "user", userID, "subscribers", n)
	return &Subscription{b: b, sub: sub}
}

// Publish enqueues a message for every subscriber. A subscriber with a
// full queue is marked stale and reaped on the next ping sweep; publishers
// never see subscriber failures.
func (b *Broadcaster) Publish(event, data string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.tryEnqueue(Message{Event: event, Data: data})
	}
	telemetry.PipelinePublished.Inc()
}

// PublishTo enqueues a message for one user's subscribers. Having no
// subscriber is reported as a not-found error; delivery failure to a
// stalled subscriber is not.
func (b *Broadcaster) PublishTo(userID, event, data string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	found := false
	for sub := range b.subs {
		if sub.userID != userID {
			continue
		}
		found = true
		sub.tryEnqueue(Message{Event: event, Data: data})
	}
	if !found {
		return errors.NewNotFoundError("no pipeline subscriber for user", nil)
	}
	return nil
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Run pings subscribers every pingInterval and reaps the ones that fell
// behind, until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

// sweep delivers a ping to every subscriber and removes those that are
// stale or cannot absorb it.
func (b *Broadcaster) sweep() {
	b.mu.Lock()
	var dead []*subscriber
	for sub := range b.subs {
		if sub.stale || !sub.tryEnqueue(Message{Event: EventPing, Data: "{}"}) {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		delete(b.subs, sub)
		close(sub.ch)
	}
	n := len(b.subs)
	b.mu.Unlock()

	telemetry.PipelineSubscribers.Set(float64(n))
	for _, sub := range dead {
		logger.Debugw("pipeline subscriber dropped", "user", sub.userID)
	}
}

func (b *Broadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	telemetry.PipelineSubscribers.Set(float64(len(b.subs)))
}

// tryEnqueue delivers without blocking. Callers hold the broadcaster
// mutex, which also serializes sends against channel close.
func (s *subscriber) tryEnqueue(msg Message) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		s.stale = true
		telemetry.PipelineDropped.Inc()
		return false
	}
}
