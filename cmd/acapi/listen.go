package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/acapi/internal/runtime/jsoncodec"
	"github.com/drblury/acapi/internal/runtime/transport"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print events arriving on the events queue",
	Long: `Consumes the durable events queue and prints every message until
interrupted. Messages are acked once printed, so running this next to a real
consumer steals messages from it; pass --queue to consume a different queue
bound to the same exchange.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		queue, _ := cmd.Flags().GetString("queue")

		l, err := transport.NewListener(transport.ListenerOptions{
			URL:    appConfig.AMQPURL,
			Queue:  queue,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("connect listener: %w", err)
		}
		defer func() { _ = l.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		printer := newEventPrinter(cmd.OutOrStdout(), asJSON)
		return l.Listen(ctx, func(_ context.Context, ev transport.ReceivedEvent) error {
			return printer(ev)
		})
	},
}

func init() {
	listenCmd.Flags().Bool("json", false, "print one JSON object per event")
	listenCmd.Flags().String("queue", "", "queue to consume (default acapi.queue.events.local)")
}

type printedEvent struct {
	RoutingKey    string            `json:"routing_key"`
	Body          string            `json:"body"`
	Headers       map[string]string `json:"headers"`
	AppID         string            `json:"app_id,omitempty"`
	MessageID     string            `json:"message_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Timestamp     string            `json:"timestamp,omitempty"`
}

func newEventPrinter(w io.Writer, asJSON bool) func(transport.ReceivedEvent) error {
	if asJSON {
		enc := jsoncodec.NewLineEncoder(w)
		return func(ev transport.ReceivedEvent) error {
			return enc.Encode(toPrinted(ev))
		}
	}
	return func(ev transport.ReceivedEvent) error {
		_, err := io.WriteString(w, formatEvent(ev))
		return err
	}
}

func toPrinted(ev transport.ReceivedEvent) printedEvent {
	p := printedEvent{
		RoutingKey:    ev.RoutingKey,
		Body:          ev.Body,
		Headers:       ev.Headers,
		AppID:         ev.AppID,
		MessageID:     ev.MessageID,
		CorrelationID: ev.CorrelationID,
	}
	if p.Headers == nil {
		p.Headers = map[string]string{}
	}
	if !ev.Timestamp.IsZero() {
		p.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return p
}

// formatEvent renders an event as a header line, one indented line per
// header in key order, and the body when there is one.
func formatEvent(ev transport.ReceivedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", ev.RoutingKey)
	if ev.AppID != "" {
		fmt.Fprintf(&b, " app=%s", ev.AppID)
	}
	if ev.MessageID != "" {
		fmt.Fprintf(&b, " id=%s", ev.MessageID)
	}
	b.WriteByte('\n')
	for _, k := range ev.Headers.Keys() {
		fmt.Fprintf(&b, "  %s: %s\n", k, ev.Headers[k])
	}
	if ev.Body != "" {
		fmt.Fprintf(&b, "  body: %s\n", ev.Body)
	}
	return b.String()
}
