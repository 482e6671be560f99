package acapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingBroker struct {
	mu      sync.Mutex
	keys    []string
	bodies  []string
	headers []map[string]any
}

func (r *recordingBroker) Publish(_ context.Context, body string, opts PublishOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, opts.RoutingKey)
	r.bodies = append(r.bodies, body)
	r.headers = append(r.headers, opts.Headers)
	return nil
}

func (r *recordingBroker) Reconnect()   {}
func (r *recordingBroker) Close() error { return nil }

func TestBootExportPropagatesErrors(t *testing.T) {
	if _, err := Boot(nil, DiscardLogger(), Dependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected ErrConfigRequired, got %v", err)
	}
	if _, err := NewPublisher(PublisherOptions{}); !errors.Is(err, ErrAppIDRequired) {
		t.Fatalf("expected ErrAppIDRequired, got %v", err)
	}
}

func TestEndToEndThroughNotifier(t *testing.T) {
	rb := &recordingBroker{}
	n := NewNotifier()
	rt, err := Boot(&Config{PublishAMQPEvents: Bool(true), AppID: "acapi-test"}, DiscardLogger(), Dependencies{Notifier: n, Broker: rb})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	n.Publish(context.Background(), "acapi.individual.created", time.Unix(0, 0), time.Unix(1, 0), "mid", map[string]any{
		"other_property_1": "a",
		"other_property_2": "b",
	})
	n.Publish(context.Background(), "acapi.individual.created", time.Unix(0, 0), time.Unix(1, 0), "mid", map[string]any{
		KeyAppID: "someone-else",
	})

	if len(rb.keys) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(rb.keys))
	}
	if rb.keys[0] != "individual.created" || rb.bodies[0] != "" {
		t.Fatalf("unexpected publish key=%q body=%q", rb.keys[0], rb.bodies[0])
	}
	h := rb.headers[0]
	if len(h) != 3 || h["other_property_1"] != "a" || h["other_property_2"] != "b" {
		t.Fatalf("unexpected headers %v", h)
	}
	if ts, ok := h[KeySubmittedTimestamp].(time.Time); !ok || !ts.Equal(time.Unix(1, 0)) {
		t.Fatalf("unexpected submitted_timestamp %v", h[KeySubmittedTimestamp])
	}
}

func TestBootWithNotifierDisabledByDefault(t *testing.T) {
	rt, err := BootWithNotifier(&Config{}, DiscardLogger(), NewNotifier())
	if err != nil {
		t.Fatal(err)
	}
	if rt.Enabled() {
		t.Fatal("forwarding must be off when the setting is unspecified")
	}
}

func TestHelperExports(t *testing.T) {
	if RoutingKey(DefaultNamespace, "acapi.individual.created") != "individual.created" {
		t.Fatal("RoutingKey export mismatch")
	}
	if Eligible(Payload{KeyAppID: "x"}) {
		t.Fatal("Eligible export mismatch")
	}
	p, err := NormalizePayload(map[any]any{":body": "b"})
	if err != nil || p[KeyBody] != "b" {
		t.Fatalf("NormalizePayload export mismatch: %v %v", p, err)
	}
	if NewMessageID() == "" {
		t.Fatal("expected message id")
	}
	if _, err := Marshal(map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
}
