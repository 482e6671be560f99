// Package instrument is an in-process, synchronous instrumentation bus. Code
// emits named events; subscribers registered for an exact name or for a whole
// namespace run in-line on the emitting goroutine.
package instrument

import (
	"context"
	"strings"
	"sync"
	"time"

	idspkg "github.com/drblury/acapi/internal/runtime/ids"
	"github.com/drblury/acapi/internal/runtime/payload"
)

// KeyException is added to the payload of an Instrument block that failed.
const KeyException = "exception"

// Event is one instrumented occurrence.
type Event struct {
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time
	ID         string
	Payload    payload.Payload
}

// Duration is the time spent between start and finish.
func (e Event) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Subscriber receives events. It must not block for long: it runs on the
// emitter's goroutine.
type Subscriber func(ctx context.Context, ev Event)

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	id        uint64
	pattern   string
	namespace bool
	fn        Subscriber
}

// Pattern is the exact event name, or the namespace for namespace subscriptions.
func (s *Subscription) Pattern() string {
	return s.pattern
}

func (s *Subscription) matches(name string) bool {
	if s.namespace {
		return strings.HasPrefix(name, s.pattern+".")
	}
	return name == s.pattern
}

// Notifier fans events out to subscribers in registration order.
type Notifier struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64

	now func() time.Time
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{now: time.Now}
}

// Subscribe registers fn for events named exactly name.
func (n *Notifier) Subscribe(name string, fn Subscriber) *Subscription {
	return n.add(name, false, fn)
}

// SubscribeNamespace registers fn for every event named "<namespace>.<suffix>".
func (n *Notifier) SubscribeNamespace(namespace string, fn Subscriber) *Subscription {
	return n.add(namespace, true, fn)
}

func (n *Notifier) add(pattern string, namespace bool, fn Subscriber) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	sub := &Subscription{id: n.nextID, pattern: pattern, namespace: namespace, fn: fn}
	n.subs = append(n.subs, sub)
	return sub
}

// Unsubscribe removes sub. Unknown subscriptions are ignored.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
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

// Listening reports whether any subscriber would receive an event named name.
func (n *Notifier) Listening(name string) bool {
	return len(n.matching(name)) > 0
}

func (n *Notifier) matching(name string) []*Subscription {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Subscription
	for _, s := range n.subs {
		if s.matches(name) {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers an already-timed event. Payload keys are canonicalised
// before any subscriber sees them.
func (n *Notifier) Publish(ctx context.Context, name string, startedAt, finishedAt time.Time, id string, p map[string]any) {
	n.PublishEvent(ctx, Event{
		Name:       name,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		ID:         id,
		Payload:    p,
	})
}

// PublishEvent delivers ev to every matching subscriber. Payload keys are
// canonicalised as in Publish.
func (n *Notifier) PublishEvent(ctx context.Context, ev Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.ID == "" {
		ev.ID = idspkg.NewMessageID()
	}
	ev.Payload = payload.FromMap(ev.Payload)
	for _, s := range n.matching(ev.Name) {
		s.fn(ctx, ev)
	}
}

// Instrument runs fn and emits an event named name spanning its execution.
// If fn fails, the error text is added to the payload under "exception" and
// the error is returned after subscribers ran.
func (n *Notifier) Instrument(ctx context.Context, name string, p map[string]any, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	started := n.now()
	var err error
	if fn != nil {
		err = fn(ctx)
	}
	finished := n.now()

	pl := payload.FromMap(p)
	if err != nil {
		pl[KeyException] = err.Error()
	}
	n.PublishEvent(ctx, Event{Name: name, StartedAt: started, FinishedAt: finished, Payload: pl})
	return err
}
