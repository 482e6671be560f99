// Package acapi forwards in-process instrumentation events to a local AMQP
// broker. Code emits named events on a Notifier; a Runtime booted from Config
// subscribes its publisher to every event in the configured namespace (by
// default "acapi") and republishes eligible ones onto the durable fanout
// exchange acapi.exchange.events.local, bound to the durable queue
// acapi.queue.events.local.
//
// # Forwarding
//
// For each event the publisher:
//   - drops events whose payload already carries app_id, so messages that
//     came from another publisher are never echoed back;
//   - derives the routing key by stripping "<namespace>." from the event name;
//   - sends the payload's body value as the message body, or "" when absent;
//   - sends every other payload key as an AMQP header, plus
//     submitted_timestamp, which defaults to the event's finish time.
//
// The broker connection is opened lazily on the first forwarded event and
// kept for later ones. Runtime.Reconnect drops it so the next event opens a
// fresh one; call it in a forked child before it emits anything. Failures are
// returned to the dispatch shim, which logs them and never lets them reach
// the instrumented code.
//
// # Configuration
//
// Forwarding is off unless Config.PublishAMQPEvents is explicitly true. When
// the flag is left unset Boot logs that no setting was specified and stays
// disabled. Config can be filled in code, loaded from the [acapi] table of a
// TOML file with LoadConfigFile, or overridden from ACAPI_* environment
// variables.
//
// A minimal setup:
//
//	n := acapi.NewNotifier()
//	rt, err := acapi.BootWithNotifier(&acapi.Config{
//		PublishAMQPEvents: acapi.Bool(true),
//		AppID:             "billing",
//	}, acapi.NewSlogServiceLogger(slog.Default()), n)
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//
//	_ = n.Instrument(ctx, "acapi.individual.created", map[string]any{"body": xml}, work)
//
// # Observability
//
// With MetricsEnabled the publisher records Prometheus counters under
// acapi_publisher_* and, when MetricsPort is set, serves them on /metrics.
// Every publish runs inside an OpenTelemetry producer span named
// acapi.publish.
//
// The acapi command in cmd/acapi wraps the same packages: listen tails the
// events queue, emit forwards a single event, config prints the effective
// settings.
package acapi
