// Package payload holds the canonical form of an instrumentation event's
// payload and the coercions that turn payload values into AMQP wire values.
package payload

import (
	"fmt"
	"reflect"
	"strings"
)

// Reserved keys.
const (
	KeyAppID              = "app_id"
	KeyBody               = "body"
	KeySubmittedTimestamp = "submitted_timestamp"
)

// Payload maps string keys to arbitrary values. Keys are always in canonical
// form: plain strings without a leading symbol colon.
type Payload map[string]any

// Has reports whether key is present, even with a nil value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Get returns the value stored under key.
func (p Payload) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// Clone returns a shallow copy.
func (p Payload) Clone() Payload {
	return p.Without()
}

// Without returns a shallow copy with the given keys removed.
func (p Payload) Without(keys ...string) Payload {
	cloned := make(Payload, len(p))
	for k, v := range p {
		cloned[k] = v
	}
	for _, k := range keys {
		delete(cloned, k)
	}
	return cloned
}

// Keys returns the payload keys in no particular order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}

// CanonicalKey folds the symbol spelling ":app_id" into "app_id".
func CanonicalKey(key string) string {
	return strings.TrimPrefix(key, ":")
}

// FromMap canonicalises the keys of a string-keyed map. When two spellings of
// the same key are present, the plain string spelling wins.
func FromMap(m map[string]any) Payload {
	p := make(Payload, len(m))
	for k, v := range m {
		ck := CanonicalKey(k)
		if _, taken := p[ck]; taken && ck != k {
			continue
		}
		p[ck] = v
	}
	return p
}

// Normalize converts a loosely typed map into a Payload. Keys may be strings,
// named string types, or fmt.Stringer values; anything else is rejected. When
// several spellings collapse onto one key, the plain string spelling wins.
func Normalize(raw map[any]any) (Payload, error) {
	m := make(map[string]any, len(raw))
	plain := make(map[string]bool, len(raw))
	for k, v := range raw {
		key, err := keyString(k)
		if err != nil {
			return nil, err
		}
		_, isPlain := k.(string)
		if plain[key] && !isPlain {
			continue
		}
		m[key] = v
		plain[key] = plain[key] || isPlain
	}
	return FromMap(m), nil
}

func keyString(k any) (string, error) {
	switch key := k.(type) {
	case string:
		return key, nil
	case fmt.Stringer:
		return key.String(), nil
	}
	rv := reflect.ValueOf(k)
	if rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", fmt.Errorf("payload: unsupported key type %T", k)
}
