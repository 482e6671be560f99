package transport

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	idspkg "github.com/drblury/acapi/internal/runtime/ids"
	"github.com/drblury/acapi/internal/runtime/metadata"
)

// HeaderMarshaler maps AMQP deliveries onto Watermill messages. Headers
// become string metadata and message properties travel under the reserved
// metadata keys.
type HeaderMarshaler struct{}

// Marshal builds a Publishing from msg. Reserved keys are moved back into
// message properties; everything else is sent as a string header.
func (HeaderMarshaler) Marshal(msg *message.Message) (amqp091.Publishing, error) {
	md := metadata.FromWatermill(msg.Metadata)

	pub := amqp091.Publishing{
		Headers:       metadata.ToTable(md.Headers()),
		Body:          msg.Payload,
		MessageId:     md[metadata.KeyMessageID],
		AppId:         md[metadata.KeyAppID],
		CorrelationId: md[metadata.KeyCorrelationID],
		ContentType:   md[metadata.KeyContentType],
		DeliveryMode:  amqp091.Persistent,
	}
	if pub.MessageId == "" {
		pub.MessageId = msg.UUID
	}
	if raw := md[metadata.KeyTimestamp]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			pub.Timestamp = ts
		}
	}
	return pub, nil
}

// Unmarshal builds a Watermill message from a delivery. Deliveries without a
// message id get a fresh ULID.
func (HeaderMarshaler) Unmarshal(d amqp091.Delivery) (*message.Message, error) {
	uuid := d.MessageId
	if uuid == "" {
		uuid = idspkg.NewMessageID()
	}

	md := metadata.FromTable(d.Headers)
	setIfPresent(md, metadata.KeyRoutingKey, d.RoutingKey)
	setIfPresent(md, metadata.KeyAppID, d.AppId)
	setIfPresent(md, metadata.KeyMessageID, d.MessageId)
	setIfPresent(md, metadata.KeyCorrelationID, d.CorrelationId)
	setIfPresent(md, metadata.KeyContentType, d.ContentType)
	if !d.Timestamp.IsZero() {
		md[metadata.KeyTimestamp] = metadata.String(d.Timestamp)
	}

	msg := message.NewMessage(uuid, d.Body)
	msg.Metadata = metadata.ToWatermill(md)
	return msg, nil
}

func setIfPresent(md metadata.Metadata, key, value string) {
	if value != "" {
		md[key] = value
	}
}
