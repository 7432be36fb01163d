package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pion/logging"

	"github.com/backkem/rf24relay/pkg/radio"
	"github.com/backkem/rf24relay/pkg/relay"
)

// Defaults for the daemon configuration file.
const (
	DefaultConfigPath   = "rf24relay.toml"
	DefaultIdentityPath = "identite.json"
	DefaultRegistryPath = "noeuds.json"
	DefaultDevice       = "/dev/ttyACM0"
	DefaultChannel      = "prod"
	DefaultListen       = ":8024"
	DefaultLogLevel     = "info"

	// PassphraseEnv names the variable holding the identity passphrase.
	PassphraseEnv = "RF24RELAY_PASSPHRASE"
)

// errInvalidConfig is returned when the configuration file is inconsistent.
var errInvalidConfig = errors.New("invalid configuration")

// Config is the daemon configuration file.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Radio     RadioConfig     `toml:"radio"`
	Paths     PathsConfig     `toml:"paths"`
	Protocol  ProtocolConfig  `toml:"protocol"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	WebSocket WebSocketConfig `toml:"websocket"`
}

// RadioConfig selects the serial bridge.
type RadioConfig struct {
	Device   string `toml:"device"`
	BaudRate int    `toml:"baud"`
	// Channel is an environment name (prod, int, dev) or a channel number.
	Channel    string `toml:"channel"`
	QueueLimit int    `toml:"queue_limit"`
}

// PathsConfig locates the state files.
type PathsConfig struct {
	Identity string `toml:"identity"`
	Registry string `toml:"registry"`
}

// ProtocolConfig tunes the gateway.
type ProtocolConfig struct {
	AssemblyTimeout time.Duration `toml:"assembly_timeout"`
	BeaconInterval  time.Duration `toml:"beacon_interval"`
	Throttle        time.Duration `toml:"throttle"`
}

// MQTTConfig configures the broker sink. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic_prefix"`
	QoS         *byte  `toml:"qos"`
	Retained    bool   `toml:"retained"`
	Encoding    string `toml:"encoding"`
}

// WebSocketConfig configures the HTTP listener. An empty listen address
// disables the stream and status endpoints.
type WebSocketConfig struct {
	Listen   string `toml:"listen"`
	Path     string `toml:"path"`
	Encoding string `toml:"encoding"`
	MDNS     bool   `toml:"mdns"`
	Instance string `toml:"instance"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Radio: RadioConfig{
			Device:   DefaultDevice,
			BaudRate: radio.DefaultBaudRate,
			Channel:  DefaultChannel,
		},
		Paths: PathsConfig{
			Identity: DefaultIdentityPath,
			Registry: DefaultRegistryPath,
		},
		WebSocket: WebSocketConfig{
			Listen: DefaultListen,
			Path:   "/ws",
			MDNS:   true,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error
// when allowMissing is set.
func LoadConfig(path string, allowMissing bool) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the components cannot check themselves.
func (c *Config) Validate() error {
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := radio.ParseChannel(c.Radio.Channel); err != nil {
		return fmt.Errorf("%w: radio.channel: %v", errInvalidConfig, err)
	}
	if c.Paths.Identity == "" || c.Paths.Registry == "" {
		return fmt.Errorf("%w: paths.identity and paths.registry are required", errInvalidConfig)
	}
	if _, err := relay.ParseEncoding(c.MQTT.Encoding); err != nil {
		return fmt.Errorf("%w: mqtt.encoding: %v", errInvalidConfig, err)
	}
	if _, err := relay.ParseEncoding(c.WebSocket.Encoding); err != nil {
		return fmt.Errorf("%w: websocket.encoding: %v", errInvalidConfig, err)
	}
	if c.WebSocket.Listen != "" && !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("%w: websocket.path must start with /", errInvalidConfig)
	}
	return nil
}

// LoggerFactory builds the pion logger factory at the configured level.
// Scoped PION_LOG_* variables still apply.
func (c *Config) LoggerFactory() *logging.DefaultLoggerFactory {
	lf := logging.NewDefaultLoggerFactory()
	if level, err := parseLogLevel(c.LogLevel); err == nil {
		lf.DefaultLogLevel = level
	}
	return lf
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return logging.LogLevelInfo, nil
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return 0, fmt.Errorf("%w: log_level %q", errInvalidConfig, s)
}
