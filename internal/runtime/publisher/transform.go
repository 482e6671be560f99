package publisher

import (
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	errspkg "github.com/drblury/acapi/internal/runtime/errors"
	"github.com/drblury/acapi/internal/runtime/payload"
)

// Message is the wire form of one forwarded event.
type Message struct {
	RoutingKey string
	Body       string
	Headers    amqp.Table
}

// Eligible reports whether an event with payload p may be forwarded. Events
// that already carry an app_id came from another publisher and are dropped
// to prevent republishing loops. Both key spellings count.
func Eligible(p payload.Payload) bool {
	for k := range p {
		if payload.CanonicalKey(k) == payload.KeyAppID {
			return false
		}
	}
	return true
}

// RoutingKey strips "<namespace>." from the front of name. Names outside the
// namespace are returned unchanged.
func RoutingKey(namespace, name string) string {
	if namespace == "" {
		return name
	}
	if rest, ok := strings.CutPrefix(name, namespace+"."); ok && rest != "" {
		return rest
	}
	return name
}

// Transform derives the routing key, body and headers for an event. The
// header set is the payload minus body, with submitted_timestamp defaulting
// to finishedAt when the payload does not supply one.
func Transform(namespace, name string, finishedAt time.Time, p payload.Payload) (Message, error) {
	if name == "" {
		return Message{}, errspkg.NewTransformError("", errspkg.ErrEventNameRequired)
	}
	p = payload.FromMap(p)

	var body string
	if raw, ok := p.Get(payload.KeyBody); ok {
		s, err := payload.BodyString(raw)
		if err != nil {
			return Message{}, errspkg.NewTransformError(payload.KeyBody, err)
		}
		body = s
	}

	rest := p.Without(payload.KeyBody)
	if !rest.Has(payload.KeySubmittedTimestamp) {
		rest[payload.KeySubmittedTimestamp] = finishedAt
	}
	headers, err := payload.Headers(rest)
	if err != nil {
		return Message{}, err
	}

	return Message{
		RoutingKey: RoutingKey(namespace, name),
		Body:       body,
		Headers:    headers,
	}, nil
}
