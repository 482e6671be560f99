package metadata

import (
	"reflect"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	if cloned == nil {
		t.Fatal("expected non-nil map")
	}
	if len(cloned) != 0 {
		t.Fatal("expected empty map")
	}
}

func TestHeadersDropsReservedKeys(t *testing.T) {
	md := Metadata{
		KeyRoutingKey: "individual.created",
		KeyAppID:      "acapi-test",
		KeyMessageID:  "01H",
		"other":       "a",
	}
	got := md.Headers()
	if !reflect.DeepEqual(got, Metadata{"other": "a"}) {
		t.Fatalf("Headers() = %v", got)
	}
	if len(md) != 4 {
		t.Fatal("Headers must not mutate the receiver")
	}
}

func TestKeysSorted(t *testing.T) {
	md := Metadata{"b": "", "a": "", "c": ""}
	if got := md.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Keys() = %v", got)
	}
}

func TestString(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("CET", 3600))
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "a", "a"},
		{"bytes", []byte("raw"), "raw"},
		{"bool", true, "true"},
		{"int", int64(-3), "-3"},
		{"float", 1.5, "1.5"},
		{"time in utc", ts, "2024-03-01T11:30:00.0000005Z"},
		{"decimal", amqp.Decimal{Scale: 2, Value: 12345}, "123.45"},
		{"decimal no scale", amqp.Decimal{Value: 7}, "7"},
		{"table", amqp.Table{"k": "v"}, `{"k":"v"}`},
		{"array", []any{"x", int32(1)}, `["x",1]`},
		{"nested time", amqp.Table{"at": ts}, `{"at":"2024-03-01T11:30:00.0000005Z"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := String(tc.in); got != tc.want {
				t.Fatalf("String(%#v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFromAndToTable(t *testing.T) {
	md := FromTable(amqp.Table{"a": "x", "n": int32(2)})
	if !reflect.DeepEqual(md, Metadata{"a": "x", "n": "2"}) {
		t.Fatalf("FromTable = %v", md)
	}
	table := ToTable(md)
	if err := table.Validate(); err != nil {
		t.Fatalf("ToTable produced an invalid table: %v", err)
	}
	if table["n"] != "2" {
		t.Fatalf("ToTable = %v", table)
	}
}

func TestToAndFromWatermill(t *testing.T) {
	md := Metadata{"source": "api"}
	wm := ToWatermill(md)
	if wm["source"] != "api" {
		t.Fatalf("expected watermill metadata to copy entries")
	}
	wm["source"] = "mutation"
	if md["source"] != "api" {
		t.Fatalf("expected original metadata to be immutable to watermill changes")
	}

	if len(ToWatermill(nil)) != 0 {
		t.Fatal("expected nil input to return empty metadata")
	}

	roundTrip := FromWatermill(message.Metadata{"event": "order"})
	if roundTrip["event"] != "order" {
		t.Fatalf("expected watermill metadata to convert back")
	}
}

func TestFromWatermillEmpty(t *testing.T) {
	md := FromWatermill(nil)
	if md == nil {
		t.Fatal("expected non-nil map")
	}
	if len(md) != 0 {
		t.Fatal("expected empty map")
	}
}
