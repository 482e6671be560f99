// Package publisher forwards eligible instrumentation events to the local
// AMQP broker.
package publisher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/acapi/internal/runtime/broker"
	"github.com/drblury/acapi/internal/runtime/config"
	errspkg "github.com/drblury/acapi/internal/runtime/errors"
	idspkg "github.com/drblury/acapi/internal/runtime/ids"
	"github.com/drblury/acapi/internal/runtime/instrument"
	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
	"github.com/drblury/acapi/internal/runtime/payload"
)

const tracerName = "acapi-publisher"

// Broker is the part of broker.Connection the publisher drives.
type Broker interface {
	Publish(ctx context.Context, body string, opts broker.PublishOptions) error
	Reconnect()
	Close() error
}

// Options configures a Publisher.
type Options struct {
	AppID     string
	Namespace string
	Logger    loggingpkg.ServiceLogger
	Metrics   *Metrics
	Tracer    trace.Tracer

	// Broker overrides the connection built from BrokerOptions.
	Broker        Broker
	BrokerOptions broker.Options
}

// Publisher filters, transforms and publishes events. It owns its broker
// connection.
type Publisher struct {
	appID     string
	namespace string
	broker    Broker
	logger    loggingpkg.ServiceLogger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// New builds a Publisher. No connection is opened until the first event is
// forwarded.
func New(opts Options) (*Publisher, error) {
	if opts.AppID == "" {
		return nil, errspkg.ErrAppIDRequired
	}
	if opts.Namespace == "" {
		opts.Namespace = config.DefaultNamespace
	}
	if opts.Logger == nil {
		opts.Logger = loggingpkg.Discard()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	p := &Publisher{
		appID:     opts.AppID,
		namespace: opts.Namespace,
		logger:    opts.Logger.With(loggingpkg.LogFields{"component": "publisher", "app_id": opts.AppID}),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		now:       time.Now,
	}

	p.broker = opts.Broker
	if p.broker == nil {
		bo := opts.BrokerOptions
		if bo.ConnectionName == "" {
			bo.ConnectionName = "acapi-publisher:" + opts.AppID
		}
		if bo.Logger == nil {
			bo.Logger = opts.Logger
		}
		onConnect := bo.OnConnect
		bo.OnConnect = func() {
			p.metrics.recordConnect()
			if onConnect != nil {
				onConnect()
			}
		}
		p.broker = broker.New(bo)
	}
	return p, nil
}

// AppID identifies this publisher.
func (p *Publisher) AppID() string {
	return p.appID
}

// Namespace is the event-name prefix this publisher handles.
func (p *Publisher) Namespace() string {
	return p.namespace
}

// Log forwards one event. Events whose payload carries app_id are dropped
// without error. startedAt is accepted for symmetry with the instrumentation
// bus and is not sent.
func (p *Publisher) Log(ctx context.Context, name string, startedAt, finishedAt time.Time, correlationID string, pl payload.Payload) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pl = payload.FromMap(pl)
	if !Eligible(pl) {
		p.metrics.recordFiltered()
		p.logger.Trace("Skipping event that already carries an app id", loggingpkg.LogFields{"event": name})
		return nil
	}

	msg, err := Transform(p.namespace, name, finishedAt, pl)
	if err != nil {
		p.metrics.recordError(ErrorKindTransform)
		return err
	}

	messageID := idspkg.NewMessageID()
	ctx, span := p.tracer.Start(ctx, "acapi.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", broker.ExchangeName),
			attribute.String("messaging.rabbitmq.destination.routing_key", msg.RoutingKey),
			attribute.String("messaging.message.id", messageID),
			attribute.String("acapi.event", name),
		),
	)
	defer span.End()

	start := p.now()
	err = p.broker.Publish(ctx, msg.Body, broker.PublishOptions{
		RoutingKey:    msg.RoutingKey,
		Headers:       msg.Headers,
		MessageID:     messageID,
		AppID:         p.appID,
		CorrelationID: correlationID,
		Timestamp:     finishedAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.recordError(ErrorKindConnection)
		return err
	}

	p.metrics.recordPublished(msg.RoutingKey, p.now().Sub(start))
	p.logger.Debug("Event published", loggingpkg.LogFields{
		"event":       name,
		"routing_key": msg.RoutingKey,
		"message_id":  messageID,
	})
	return nil
}

// Handle adapts Log to the instrumentation bus. The event id becomes the
// message correlation id.
func (p *Publisher) Handle(ctx context.Context, ev instrument.Event) error {
	return p.Log(ctx, ev.Name, ev.StartedAt, ev.FinishedAt, ev.ID, ev.Payload)
}

// Handlers is the explicit dispatch table for instrument.Attach: every event
// in the namespace goes to Handle.
func (p *Publisher) Handlers() instrument.Handlers {
	return instrument.Handlers{instrument.WholeNamespace: p.Handle}
}

// Reconnect drops the broker connection; the next event reconnects. Call it
// in a forked child before it emits events.
func (p *Publisher) Reconnect() {
	p.logger.Info("Reconnecting to broker on next publish", nil)
	p.broker.Reconnect()
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	return p.broker.Close()
}
