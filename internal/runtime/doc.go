/*
Package runtime owns the lifecycle of event forwarding for one process.

# Architecture Overview

A Runtime is booted once from a config.Config. Depending on the
acapi.publish_amqp_events setting it either stays disabled or holds a single
publisher.Publisher, optionally subscribed to an instrument.Notifier. Nothing
is global: callers pass the Runtime to whatever needs it.

# Package Structure

## Runtime (runtime.go)

Boot validates the config, builds the publisher with its metrics and tracer
and starts the optional /metrics server. Disable, Reconnect and Close manage
the publisher afterwards; Log forwards one event directly.

# Sub-packages

  - broker/: lazy AMQP connection with the fixed queue/exchange topology
  - config/: settings, TOML loading, ACAPI_* environment overlay, validation
  - errors/: sentinel errors and the connection/transform error kinds
  - ids/: ULID generation for message ids
  - instrument/: in-process notifier and the explicit handler map
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: conversion between AMQP tables and string metadata
  - payload/: payload normalisation and AMQP value coercion
  - publisher/: eligibility filter, transform and publish
  - transport/: listener consuming the events queue

# Usage Example

	n := instrument.NewNotifier()
	rt, err := runtime.Boot(&cfg, logger, runtime.Dependencies{Notifier: n})
	if err != nil {
		return err
	}
	defer rt.Close()

	n.Publish(ctx, "acapi.individual.created", start, finish, id, map[string]any{
		"body": xml,
	})
*/
package runtime
