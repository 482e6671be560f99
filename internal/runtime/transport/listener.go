// Package transport consumes forwarded events back off the local broker.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/acapi/internal/runtime/broker"
	idspkg "github.com/drblury/acapi/internal/runtime/ids"
	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
	"github.com/drblury/acapi/internal/runtime/metadata"
)

var (
	AmqpConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	AmqpSubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
)

// ReceivedEvent is one message taken off the events queue.
type ReceivedEvent struct {
	RoutingKey    string
	Body          string
	Headers       metadata.Metadata
	AppID         string
	MessageID     string
	CorrelationID string
	Timestamp     time.Time
}

// HandlerFunc processes a received event. A returned error nacks the
// message so the broker redelivers it.
type HandlerFunc func(ctx context.Context, ev ReceivedEvent) error

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	URL string
	// Queue overrides the events queue name.
	Queue  string
	Logger loggingpkg.ServiceLogger
}

// Listener consumes the events queue through Watermill's AMQP subscriber.
// It declares the same durable queue and fanout exchange the publisher does.
type Listener struct {
	subscriber message.Subscriber
	conn       *amqp.ConnectionWrapper
	queue      string
	logger     loggingpkg.ServiceLogger
}

// NewListener connects to the broker and prepares a subscriber.
func NewListener(opts ListenerOptions) (*Listener, error) {
	if opts.URL == "" {
		return nil, errors.New("listener: broker url is required")
	}
	if opts.Queue == "" {
		opts.Queue = broker.QueueName
	}
	if opts.Logger == nil {
		opts.Logger = loggingpkg.Discard()
	}
	logger := opts.Logger.With(loggingpkg.LogFields{"component": "listener", "queue": opts.Queue})
	wmLogger := loggingpkg.NewWatermillAdapter(logger)

	conn, cfg, err := setupAmqp(opts.URL, opts.Queue, wmLogger)
	if err != nil {
		return nil, err
	}
	subscriber, err := AmqpSubscriberFactory(cfg, wmLogger, conn)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, err
	}
	return &Listener{subscriber: subscriber, conn: conn, queue: opts.Queue, logger: logger}, nil
}

func setupAmqp(url, queue string, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, amqp.Config, error) {
	amqpConfig := subscriberConfig(url, queue)
	amqpConn, err := AmqpConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return nil, amqp.Config{}, err
	}
	return amqpConn, amqpConfig, nil
}

// subscriberConfig declares the fixed topology: the topic is always the
// events exchange and the queue name never depends on it.
func subscriberConfig(url, queue string) amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(url, func(string) string { return queue })
	cfg.Exchange.GenerateName = func(string) string { return broker.ExchangeName }
	cfg.Marshaler = HeaderMarshaler{}
	return cfg
}

// Listen delivers events to fn until ctx is cancelled or the subscription
// ends. Messages are acked when fn succeeds and nacked otherwise.
func (l *Listener) Listen(ctx context.Context, fn HandlerFunc) error {
	if fn == nil {
		return errors.New("listener: handler is required")
	}
	messages, err := l.subscriber.Subscribe(ctx, broker.ExchangeName)
	if err != nil {
		return err
	}
	l.logger.Info("Listening for events", nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			l.handle(msg, fn)
		}
	}
}

func (l *Listener) handle(msg *message.Message, fn HandlerFunc) {
	ev := ToEvent(msg)
	ctx, span := otel.Tracer("acapi-listener").Start(msg.Context(), "acapi.receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", ev.MessageID),
			attribute.String("messaging.rabbitmq.destination.routing_key", ev.RoutingKey),
		),
	)
	defer span.End()

	if err := fn(ctx, ev); err != nil {
		span.RecordError(err)
		l.logger.Error("Event handler failed, nacking", err, loggingpkg.LogFields{"message_id": ev.MessageID})
		msg.Nack()
		return
	}
	msg.Ack()
}

// ToEvent splits a Watermill message into properties and headers.
func ToEvent(msg *message.Message) ReceivedEvent {
	md := metadata.FromWatermill(msg.Metadata)
	ev := ReceivedEvent{
		RoutingKey:    md[metadata.KeyRoutingKey],
		Body:          string(msg.Payload),
		Headers:       md.Headers(),
		AppID:         md[metadata.KeyAppID],
		MessageID:     md[metadata.KeyMessageID],
		CorrelationID: md[metadata.KeyCorrelationID],
	}
	if raw := md[metadata.KeyTimestamp]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ev.Timestamp = ts
		}
	}
	if ev.MessageID == "" {
		ev.MessageID = msg.UUID
	}
	// Message ids are ULIDs, so a missing timestamp can be read off the id.
	if ev.Timestamp.IsZero() {
		if ts, err := idspkg.Time(ev.MessageID); err == nil {
			ev.Timestamp = ts
		}
	}
	return ev
}

// Close stops the subscriber and the connection.
func (l *Listener) Close() error {
	err := l.subscriber.Close()
	if l.conn != nil {
		err = errors.Join(err, l.conn.Close())
	}
	return err
}
