// Package notify fans appointment status changes out to in-process
// subscribers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"carelink/backend/internal/domain"
)

// Subscription identifies one registered callback. The zero value is not
// registered.
type Subscription struct {
	id uint64
}

type subscriber struct {
	id uint64
	fn func(domain.StatusChange)
}

// Notifier delivers every StatusChange to all subscribers synchronously,
// in registration order. A panicking subscriber is logged and skipped.
type Notifier struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
	logger *slog.Logger
}

func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger.With(slog.String("component", "notifier"))}
}

func (n *Notifier) Subscribe(fn func(domain.StatusChange)) Subscription {
	if fn == nil {
		return Subscription{}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.subs = append(n.subs, subscriber{id: n.nextID, fn: fn})
	return Subscription{id: n.nextID}
}

// Unsubscribe removes sub. Unknown or already removed subscriptions are
// ignored.
func (n *Notifier) Unsubscribe(sub Subscription) {
	if sub.id == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s.id == sub.id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Publish runs outside the lock so a subscriber may subscribe or
// unsubscribe without deadlocking; such changes apply from the next
// Publish.
func (n *Notifier) Publish(change domain.StatusChange) {
	n.mu.Lock()
	subs := make([]subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		n.deliver(s, change)
	}
}

func (n *Notifier) deliver(s subscriber, change domain.StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.LogAttrs(context.Background(), slog.LevelError, "subscriber panicked",
				slog.Uint64("subscription", s.id),
				slog.String("appointment_id", change.AppointmentID),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.fn(change)
}
