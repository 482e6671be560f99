package broker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Session is the subset of *amqp.Connection the broker connection needs.
type Session interface {
	Channel() (Channel, error)
	Close() error
	IsClosed() bool
}

// Channel is the subset of *amqp.Channel the broker connection needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc opens a session against the broker at url.
type DialFunc func(url string, cfg amqp.Config) (Session, error)

// DialFactory allows overriding the session creation for testing.
var DialFactory DialFunc = func(url string, cfg amqp.Config) (Session, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return amqpSession{conn: conn}, nil
}

type amqpSession struct {
	conn *amqp.Connection
}

func (s amqpSession) Channel() (Channel, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s amqpSession) Close() error {
	return s.conn.Close()
}

func (s amqpSession) IsClosed() bool {
	return s.conn.IsClosed()
}

func dialConfig(connectTimeout time.Duration, connectionName string) amqp.Config {
	props := amqp.NewConnectionProperties()
	if connectionName != "" {
		props.SetClientConnectionName(connectionName)
	}
	return amqp.Config{
		Dial:       amqp.DefaultDial(connectTimeout),
		Properties: props,
	}
}
