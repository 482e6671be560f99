package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/acapi/internal/runtime"
	configpkg "github.com/drblury/acapi/internal/runtime/config"
	idspkg "github.com/drblury/acapi/internal/runtime/ids"
	"github.com/drblury/acapi/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
	"github.com/drblury/acapi/internal/runtime/payload"
	"github.com/drblury/acapi/internal/runtime/publisher"
)

const defaultCLIAppID = "acapi-cli"

// errRelayedPayload is returned for payloads the publisher would drop as
// already relayed, so emit never reports an event it did not send.
var errRelayedPayload = errors.New("payload carries app_id, which marks the event as relayed; it would not be forwarded (use --app-id to set the publishing app id)")

var emitCmd = &cobra.Command{
	Use:   "emit <event-name>",
	Short: "Forward a single event to the local broker",
	Long: `Builds an event payload from --body and --header flags and forwards it the
same way an instrumented process would. Header values that parse as JSON
literals (numbers, booleans, null, objects, arrays) keep their type; anything
else is sent as a string. An app_id header is refused: it marks an event as
relayed and the publisher would drop it.

Example:
  acapi emit acapi.individual.created --body '<individual/>' --header source=cli`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, _ := cmd.Flags().GetString("body")
		headers, _ := cmd.Flags().GetStringArray("header")
		submitted, _ := cmd.Flags().GetString("submitted-timestamp")
		appID, _ := cmd.Flags().GetString("app-id")

		p, err := buildPayload(body, cmd.Flags().Changed("body"), headers, submitted)
		if err != nil {
			return err
		}

		cfg := emitConfig(appConfig, appID)
		id, err := emitEvent(cmd.Context(), &cfg, logger, runtimepkg.Dependencies{}, args[0], p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "emitted %s (correlation id %s)\n", args[0], id)
		return nil
	},
}

func init() {
	emitCmd.Flags().String("body", "", "message body")
	emitCmd.Flags().StringArray("header", nil, "payload entry as key=value (repeatable)")
	emitCmd.Flags().String("submitted-timestamp", "", "RFC 3339 timestamp overriding the event finish time")
	emitCmd.Flags().String("app-id", "", "app id of the publishing instance (default from config, else acapi-cli)")
}

// emitConfig forces forwarding on: emitting is an explicit request to publish.
func emitConfig(base configpkg.Config, appID string) configpkg.Config {
	cfg := base
	cfg.PublishAMQPEvents = configpkg.Bool(true)
	cfg.MetricsEnabled = false
	switch {
	case appID != "":
		cfg.AppID = appID
	case cfg.AppID == "":
		cfg.AppID = defaultCLIAppID
	}
	return cfg
}

func emitEvent(ctx context.Context, cfg *configpkg.Config, log loggingpkg.ServiceLogger, deps runtimepkg.Dependencies, name string, p payload.Payload) (string, error) {
	if !publisher.Eligible(payload.FromMap(p)) {
		return "", fmt.Errorf("emit %s: %w", name, errRelayedPayload)
	}

	rt, err := runtimepkg.Boot(cfg, log, deps)
	if err != nil {
		return "", err
	}
	defer func() { _ = rt.Close() }()

	now := time.Now()
	id := idspkg.NewMessageIDAt(now)
	if err := rt.Log(ctx, name, now, now, id, p); err != nil {
		return "", fmt.Errorf("emit %s: %w", name, err)
	}
	return id, nil
}

func buildPayload(body string, hasBody bool, headers []string, submitted string) (payload.Payload, error) {
	p := payload.Payload{}
	for _, h := range headers {
		k, v, ok := splitField(h)
		if !ok {
			return nil, fmt.Errorf("invalid --header %q (want key=value)", h)
		}
		key := payload.CanonicalKey(k)
		if key == payload.KeyAppID {
			return nil, fmt.Errorf("invalid --header %q: %w", h, errRelayedPayload)
		}
		p[key] = headerLiteral(v)
	}
	if hasBody {
		p[payload.KeyBody] = body
	}
	if submitted != "" {
		ts, err := time.Parse(time.RFC3339Nano, submitted)
		if err != nil {
			return nil, fmt.Errorf("invalid --submitted-timestamp: %w", err)
		}
		p[payload.KeySubmittedTimestamp] = ts
	}
	return p, nil
}

// splitField splits "key=value" into (key, value, true).
// Returns ("", "", false) if there is no '=' or key is empty.
func splitField(s string) (string, string, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// headerLiteral decodes v when it is a JSON literal and returns it as a
// string otherwise. Whole numbers decode to int64.
func headerLiteral(v string) any {
	if v == "" {
		return v
	}
	switch v[0] {
	case '{', '[', '"', 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
	default:
		return v
	}
	var decoded any
	if err := jsoncodec.Unmarshal([]byte(v), &decoded); err != nil {
		return v
	}
	if f, ok := decoded.(float64); ok && f == float64(int64(f)) && !strings.ContainsAny(v, ".eE") {
		return int64(f)
	}
	return decoded
}
