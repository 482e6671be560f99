package main

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	configpkg "github.com/drblury/acapi/internal/runtime/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after merging the config file, ACAPI_*
environment variables and flags. Credentials in the broker URL are redacted.
The output is a valid config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := writeConfig(cmd.OutOrStdout(), appConfig); err != nil {
			return err
		}
		if err := configpkg.ValidateConfig(&appConfig); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		return nil
	},
}

type printableConfig struct {
	PublishAMQPEvents *bool  `toml:"publish_amqp_events,omitempty"`
	AppID             string `toml:"app_id"`
	AMQPURL           string `toml:"amqp_url"`
	Namespace         string `toml:"namespace"`
	ConnectTimeout    string `toml:"connect_timeout"`
	PublishTimeout    string `toml:"publish_timeout"`
	MetricsEnabled    bool   `toml:"metrics_enabled"`
	MetricsPort       int    `toml:"metrics_port"`
}

func writeConfig(w io.Writer, cfg configpkg.Config) error {
	if !cfg.Specified() {
		fmt.Fprintf(w, "# %s is unset: forwarding is disabled\n", configpkg.SettingName)
	}
	out := map[string]printableConfig{
		"acapi": {
			PublishAMQPEvents: cfg.PublishAMQPEvents,
			AppID:             cfg.AppID,
			AMQPURL:           configpkg.RedactURL(cfg.AMQPURL),
			Namespace:         cfg.Namespace,
			ConnectTimeout:    cfg.ConnectTimeout.String(),
			PublishTimeout:    cfg.PublishTimeout.String(),
			MetricsEnabled:    cfg.MetricsEnabled,
			MetricsPort:       cfg.MetricsPort,
		},
	}
	return toml.NewEncoder(w).Encode(out)
}
