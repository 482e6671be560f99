package payload

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	errspkg "github.com/drblury/acapi/internal/runtime/errors"
	"github.com/drblury/acapi/internal/runtime/jsoncodec"
)

// BodyString returns the string form of a body value. Scalars and Stringers
// render as text, composites as JSON. Functions and channels have no string
// form and yield an error.
func BodyString(v any) (string, error) {
	if isNilPointer(v) {
		return "", nil
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	case error:
		return val.Error(), nil
	case bool:
		return strconv.FormatBool(val), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "", fmt.Errorf("value of type %T has no string form", v)
	}

	encoded, err := jsoncodec.MarshalString(v)
	if err != nil {
		return "", fmt.Errorf("value of type %T has no string form: %w", v, err)
	}
	return encoded, nil
}

// HeaderValue converts v into a value the AMQP field table encoder accepts.
// Native AMQP types pass through untouched.
func HeaderValue(v any) (any, error) {
	if isNilPointer(v) {
		return nil, nil
	}
	switch val := v.(type) {
	case nil, bool, int8, int16, int32, int64, byte, float32, float64, string, []byte, amqp.Decimal, time.Time:
		return val, nil
	case int:
		// amqp091 writes a plain int as a 32-bit field.
		return int64(val), nil
	case amqp.Table:
		return tableValue(val)
	case Payload:
		return tableValue(val)
	case map[string]any:
		return tableValue(val)
	case []any:
		return arrayValue(val)
	case uint16:
		return int32(val), nil
	case uint32:
		return int64(val), nil
	case uint:
		return uintValue(uint64(val))
	case uint64:
		return uintValue(val)
	case fmt.Stringer:
		return val.String(), nil
	case error:
		return val.Error(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintValue(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return arrayValue(items)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return tableValue(m)
		}
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, fmt.Errorf("value of type %T cannot be sent as a header", v)
	}

	encoded, err := jsoncodec.MarshalString(v)
	if err != nil {
		return nil, fmt.Errorf("value of type %T cannot be sent as a header: %w", v, err)
	}
	return encoded, nil
}

// Headers converts every entry of p into an AMQP table. The first value that
// cannot be converted is reported as a TransformError naming its key.
func Headers(p Payload) (amqp.Table, error) {
	table := make(amqp.Table, len(p))
	for k, v := range p {
		hv, err := HeaderValue(v)
		if err != nil {
			return nil, errspkg.NewTransformError(k, err)
		}
		table[k] = hv
	}
	return table, nil
}

func tableValue[M ~map[string]any](m M) (amqp.Table, error) {
	table := make(amqp.Table, len(m))
	for k, v := range m {
		hv, err := HeaderValue(v)
		if err != nil {
			return nil, fmt.Errorf("table field %q: %w", k, err)
		}
		table[k] = hv
	}
	return table, nil
}

func arrayValue(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		hv, err := HeaderValue(item)
		if err != nil {
			return nil, fmt.Errorf("array index %d: %w", i, err)
		}
		out[i] = hv
	}
	return out, nil
}

// isNilPointer reports a typed nil pointer, whose Stringer or error methods
// would panic on a value receiver.
func isNilPointer(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func uintValue(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("unsigned value %d overflows a signed 64-bit header", u)
	}
	return int64(u), nil
}
