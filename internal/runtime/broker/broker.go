// Package broker owns the connection to the local AMQP broker: one session,
// one channel, the durable events queue and the durable fanout exchange it
// is bound to.
package broker

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	errspkg "github.com/drblury/acapi/internal/runtime/errors"
	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
)

// Fixed broker topology.
const (
	QueueName    = "acapi.queue.events.local"
	ExchangeName = "acapi.exchange.events.local"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// Options configures a Connection. Zero durations fall back to five seconds.
type Options struct {
	URL            string
	ConnectionName string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Logger         loggingpkg.ServiceLogger

	// Dial overrides DialFactory for this connection.
	Dial DialFunc
	// OnConnect runs after every successful connect/declare/bind sequence.
	OnConnect func()
}

// PublishOptions carries the per-message routing key, headers and properties.
type PublishOptions struct {
	RoutingKey    string
	Headers       amqp.Table
	MessageID     string
	AppID         string
	CorrelationID string
	Timestamp     time.Time
}

// link is the connected state. It is only ever held whole.
type link struct {
	session  Session
	channel  Channel
	queue    amqp.Queue
	exchange string
}

// Connection lazily establishes the broker topology and publishes onto the
// events exchange. All methods are safe for concurrent use; publishes are
// serialised.
type Connection struct {
	mu     sync.Mutex
	state  *link
	closed bool

	url            string
	connectionName string
	connectTimeout time.Duration
	publishTimeout time.Duration
	dial           DialFunc
	onConnect      func()
	logger         loggingpkg.ServiceLogger
}

// New returns an unconnected Connection. No network I/O happens until the
// first EnsureConnected or Publish.
func New(opts Options) *Connection {
	c := &Connection{
		url:            opts.URL,
		connectionName: opts.ConnectionName,
		connectTimeout: opts.ConnectTimeout,
		publishTimeout: opts.PublishTimeout,
		dial:           opts.Dial,
		onConnect:      opts.OnConnect,
		logger:         opts.Logger,
	}
	if c.connectTimeout <= 0 {
		c.connectTimeout = defaultConnectTimeout
	}
	if c.publishTimeout <= 0 {
		c.publishTimeout = defaultPublishTimeout
	}
	if c.logger == nil {
		c.logger = loggingpkg.Discard()
	}
	c.logger = c.logger.With(loggingpkg.LogFields{"component": "broker", "exchange": ExchangeName})
	return c
}

// Connected reports whether the session, channel, queue and exchange are held.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != nil
}

// EnsureConnected establishes the topology unless it is already held.
func (c *Connection) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnectedLocked(ctx)
}

func (c *Connection) ensureConnectedLocked(ctx context.Context) error {
	if c.closed {
		return errspkg.NewConnectionError(errspkg.StepDial, errspkg.ErrBrokerClosed)
	}
	if c.state != nil {
		if !c.state.session.IsClosed() {
			return nil
		}
		c.logger.Info("Broker session closed underneath us, dropping it", nil)
		c.state = nil
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return errspkg.NewConnectionError(errspkg.StepDial, err)
		}
	}

	st, err := c.establish()
	if err != nil {
		c.logger.Error("Failed to connect to broker", err, nil)
		return err
	}
	c.state = st
	c.logger.Debug("Connected to broker", loggingpkg.LogFields{"queue": st.queue.Name})
	if c.onConnect != nil {
		c.onConnect()
	}
	return nil
}

func (c *Connection) establish() (*link, error) {
	dial := c.dial
	if dial == nil {
		dial = DialFactory
	}
	session, err := dial(c.url, dialConfig(c.connectTimeout, c.connectionName))
	if err != nil {
		return nil, errspkg.NewConnectionError(errspkg.StepDial, err)
	}

	fail := func(step string, err error) (*link, error) {
		if closeErr := session.Close(); closeErr != nil {
			c.logger.Debug("Ignoring close error after failed setup", loggingpkg.LogFields{"error": closeErr.Error()})
		}
		return nil, errspkg.NewConnectionError(step, err)
	}

	ch, err := session.Channel()
	if err != nil {
		return fail(errspkg.StepChannel, err)
	}
	queue, err := ch.QueueDeclare(QueueName, true, false, false, false, nil)
	if err != nil {
		return fail(errspkg.StepQueueDeclare, err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fail(errspkg.StepExchangeDeclare, err)
	}
	if err := ch.QueueBind(queue.Name, "", ExchangeName, false, nil); err != nil {
		return fail(errspkg.StepQueueBind, err)
	}

	return &link{session: session, channel: ch, queue: queue, exchange: ExchangeName}, nil
}

// Publish connects if needed and sends body to the events exchange. A failed
// or timed out publish drops the connection so the next call starts afresh.
func (c *Connection) Publish(ctx context.Context, body string, opts PublishOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(ctx); err != nil {
		return err
	}

	msg := amqp.Publishing{
		Headers:       opts.Headers,
		Body:          []byte(body),
		MessageId:     opts.MessageID,
		AppId:         opts.AppID,
		CorrelationId: opts.CorrelationID,
		Timestamp:     opts.Timestamp,
	}
	if body != "" {
		msg.ContentType = "text/plain"
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()

	ch := c.state.channel
	exchange := c.state.exchange
	done := make(chan error, 1)
	go func() {
		done <- ch.PublishWithContext(pubCtx, exchange, opts.RoutingKey, false, false, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			c.dropLocked()
			return errspkg.NewConnectionError(errspkg.StepPublish, err)
		}
		return nil
	case <-pubCtx.Done():
		c.dropLocked()
		return errspkg.NewConnectionError(errspkg.StepPublish, pubCtx.Err())
	}
}

// Reconnect closes the held session, ignoring close errors, and clears the
// connected state. The next Publish re-establishes everything. Call it after
// a fork, before the child emits events.
func (c *Connection) Reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
}

// Close releases the session for shutdown and reports the close error. A
// closed Connection never dials again; later publishes fail with
// ErrBrokerClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.state == nil {
		return nil
	}
	err := c.state.session.Close()
	c.state = nil
	if err != nil && err != amqp.ErrClosed {
		return err
	}
	return nil
}

func (c *Connection) dropLocked() {
	if c.state == nil {
		return
	}
	if err := c.state.session.Close(); err != nil {
		c.logger.Debug("Ignoring close error while dropping connection", loggingpkg.LogFields{"error": err.Error()})
	}
	c.state = nil
}
