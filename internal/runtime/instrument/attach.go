package instrument

import (
	"context"
	"errors"
	"fmt"
	"sort"

	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
)

// WholeNamespace as a handler key subscribes to every event in the namespace.
const WholeNamespace = "*"

// HandlerFunc handles one event. Returned errors are logged by the shim and
// never reach the code that emitted the event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handlers maps event-name suffixes to handlers.
type Handlers map[string]HandlerFunc

// Attachment groups the subscriptions made by Attach.
type Attachment struct {
	notifier *Notifier
	subs     []*Subscription
}

// Detach removes every subscription made by Attach.
func (a *Attachment) Detach() {
	if a == nil {
		return
	}
	for _, s := range a.subs {
		a.notifier.Unsubscribe(s)
	}
	a.subs = nil
}

// Patterns lists the subscribed names, sorted.
func (a *Attachment) Patterns() []string {
	out := make([]string, 0, len(a.subs))
	for _, s := range a.subs {
		if s.namespace {
			out = append(out, s.pattern+"."+WholeNamespace)
			continue
		}
		out = append(out, s.pattern)
	}
	sort.Strings(out)
	return out
}

// Attach subscribes each handler to "<namespace>.<suffix>" on n. The mapping
// is fixed at call time. Handler errors and panics are logged and swallowed so
// instrumentation never breaks the instrumented code path.
func Attach(n *Notifier, namespace string, handlers Handlers, logger loggingpkg.ServiceLogger) (*Attachment, error) {
	if n == nil {
		return nil, errors.New("instrument: notifier is required")
	}
	if namespace == "" {
		return nil, errors.New("instrument: namespace is required")
	}
	if len(handlers) == 0 {
		return nil, errors.New("instrument: at least one handler is required")
	}
	if logger == nil {
		logger = loggingpkg.Discard()
	}

	suffixes := make([]string, 0, len(handlers))
	for suffix, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("instrument: handler for %q is nil", suffix)
		}
		if suffix == "" {
			return nil, errors.New("instrument: handler suffix must not be empty")
		}
		suffixes = append(suffixes, suffix)
	}
	sort.Strings(suffixes)

	a := &Attachment{notifier: n}
	for _, suffix := range suffixes {
		fn := guard(handlers[suffix], logger)
		if suffix == WholeNamespace {
			a.subs = append(a.subs, n.SubscribeNamespace(namespace, fn))
			continue
		}
		a.subs = append(a.subs, n.Subscribe(namespace+"."+suffix, fn))
	}
	return a, nil
}

func guard(h HandlerFunc, logger loggingpkg.ServiceLogger) Subscriber {
	return func(ctx context.Context, ev Event) {
		fields := loggingpkg.LogFields{"event": ev.Name, "event_id": ev.ID}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Event handler panicked", fmt.Errorf("panic: %v", r), fields)
			}
		}()
		if err := h(ctx, ev); err != nil {
			logger.Error("Event handler failed", err, fields)
		}
	}
}
