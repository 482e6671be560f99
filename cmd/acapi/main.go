package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configpkg "github.com/drblury/acapi/internal/runtime/config"
	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
)

var (
	configPath string
	amqpURL    string
	logLevel   string

	appConfig configpkg.Config
	logger    loggingpkg.ServiceLogger
)

func defaultConfigPath() string {
	if s := os.Getenv("ACAPI_CONFIG"); s != "" {
		return s
	}
	return "acapi.toml"
}

var rootCmd = &cobra.Command{
	Use:           "acapi <command>",
	Short:         "Forward and inspect acapi events on the local AMQP broker",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := loggingpkg.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = loggingpkg.NewTextLogger(cmd.ErrOrStderr(), level)

		cfg, err := loadConfig(configPath, os.LookupEnv)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("amqp-url") {
			cfg.AMQPURL = amqpURL
		}
		appConfig = cfg.WithDefaults()
		return nil
	},
}

// loadConfig reads the TOML file at path, then overlays ACAPI_* variables.
func loadConfig(path string, lookup func(string) (string, bool)) (configpkg.Config, error) {
	cfg, err := configpkg.LoadFile(path)
	if err != nil {
		return configpkg.Config{}, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return configpkg.Config{}, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to a TOML file with an [acapi] table")
	rootCmd.PersistentFlags().StringVar(&amqpURL, "amqp-url", configpkg.DefaultAMQPURL, "AMQP broker URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
