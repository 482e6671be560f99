// Package metadata is the string-keyed, string-valued header view of a
// message received from the broker.
package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/drblury/acapi/internal/runtime/jsoncodec"
)

// Reserved keys carrying AMQP message properties alongside the headers.
const (
	KeyRoutingKey    = "amqp_routing_key"
	KeyAppID         = "amqp_app_id"
	KeyMessageID     = "amqp_message_id"
	KeyCorrelationID = "amqp_correlation_id"
	KeyContentType   = "amqp_content_type"
	KeyTimestamp     = "amqp_timestamp"
)

// Reserved lists every property key, in a stable order.
var Reserved = []string{KeyRoutingKey, KeyAppID, KeyMessageID, KeyCorrelationID, KeyContentType, KeyTimestamp}

// Metadata represents the headers carried alongside an event.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// Headers returns a copy without the reserved property keys.
func (m Metadata) Headers() Metadata {
	cloned := m.Clone()
	for _, k := range Reserved {
		delete(cloned, k)
	}
	return cloned
}

// Keys returns the keys sorted.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromTable renders every AMQP header value as a string. Times use
// RFC 3339 with nanoseconds, nested tables and arrays become JSON.
func FromTable(t amqp.Table) Metadata {
	md := make(Metadata, len(t))
	for k, v := range t {
		md[k] = String(v)
	}
	return md
}

// ToTable turns metadata back into an AMQP header table of strings.
func ToTable(m Metadata) amqp.Table {
	t := make(amqp.Table, len(m))
	for k, v := range m {
		t[k] = v
	}
	return t
}

// String renders a single AMQP field value.
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case amqp.Decimal:
		return decimalString(val)
	case amqp.Table, []any:
		if encoded, err := jsoncodec.MarshalString(jsonable(val)); err == nil {
			return encoded
		}
	}
	return fmt.Sprint(v)
}

func decimalString(d amqp.Decimal) string {
	if d.Scale == 0 {
		return strconv.FormatInt(int64(d.Value), 10)
	}
	return strconv.FormatFloat(float64(d.Value)/pow10(d.Scale), 'f', int(d.Scale), 64)
}

func pow10(n uint8) float64 {
	f := 1.0
	for i := uint8(0); i < n; i++ {
		f *= 10
	}
	return f
}

// jsonable converts tables to plain maps and times to strings so the JSON
// form matches the header strings.
func jsonable(v any) any {
	switch val := v.(type) {
	case amqp.Table:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonable(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonable(item)
		}
		return out
	case time.Time:
		return String(val)
	case []byte:
		return string(val)
	case amqp.Decimal:
		return decimalString(val)
	}
	return v
}
