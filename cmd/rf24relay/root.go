package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "rf24relay",
	Short: "nRF24 telemetry relay",
	Long: `rf24relay receives sensor transmissions from an nRF24 serial bridge,
pairs devices, verifies and decrypts their readings and forwards them to an
MQTT broker and WebSocket clients.

Configuration is read from a TOML file (--config). Without one, defaults
are used: serial bridge on /dev/ttyACM0, prod channel, identity and device
table in the working directory, WebSocket stream on :8024.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (error, warn, info, debug, trace)")

	rootCmd.AddCommand(serveCmd, identityCmd, devicesCmd, discoverCmd)
}

// loadConfig reads the configuration file and applies flag overrides. The
// default path may be missing; an explicit one may not.
func loadConfig(cmd *cobra.Command) (Config, error) {
	explicit := cmd.Flags().Changed("config")
	cfg, err := LoadConfig(configPath, !explicit)
	if err != nil {
		return Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func passphrase() string {
	return os.Getenv(PassphraseEnv)
}
