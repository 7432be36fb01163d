package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/backkem/rf24relay/pkg/reading"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pion/logging"
)

// MQTT defaults.
const (
	DefaultTopicPrefix    = "rf24relay/readings"
	DefaultClientID       = "rf24relay"
	DefaultConnectTimeout = 10 * time.Second
	DefaultQoS            = 1
)

// MQTTClient is the subset of mqtt.Client the sink uses.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig configures an MQTT sink.
type MQTTConfig struct {
	// Broker is the broker URL (e.g., "tcp://localhost:1883").
	// Required unless Client is set.
	Broker string

	// ClientID identifies the relay to the broker.
	// Default: DefaultClientID
	ClientID string

	// Username and Password authenticate to the broker.
	Username string
	Password string

	// TopicPrefix is prepended to the device UUID to form the topic.
	// Default: DefaultTopicPrefix
	TopicPrefix string

	// QoS of published messages (0, 1 or 2).
	// Default: DefaultQoS
	QoS *byte

	// Retained marks published messages as retained.
	Retained bool

	// Encoding of published batches.
	Encoding Encoding

	// ConnectTimeout bounds Connect.
	// Default: DefaultConnectTimeout
	ConnectTimeout time.Duration

	// Client overrides the paho client, for tests.
	Client MQTTClient

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *MQTTConfig) Validate() error {
	if c.Client == nil && c.Broker == "" {
		return fmt.Errorf("%w: mqtt broker is required", ErrInvalidConfig)
	}
	if c.QoS != nil && *c.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos %d", ErrInvalidConfig, *c.QoS)
	}
	if c.Encoding != EncodingJSON && c.Encoding != EncodingCBOR {
		return fmt.Errorf("%w: %d", ErrUnknownEncoding, int(c.Encoding))
	}
	return nil
}

func (c *MQTTConfig) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.QoS == nil {
		q := byte(DefaultQoS)
		c.QoS = &q
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// MQTT publishes batches to an MQTT broker, one topic per device.
type MQTT struct {
	config MQTTConfig
	client MQTTClient
	log    logging.LeveledLogger

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewMQTT creates an MQTT sink. Call Connect before publishing.
func NewMQTT(config MQTTConfig) (*MQTT, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	m := &MQTT{config: config, client: config.Client}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("relay-mqtt")
	}

	if m.client == nil {
		opts := mqtt.NewClientOptions().
			AddBroker(config.Broker).
			SetClientID(config.ClientID).
			SetUsername(config.Username).
			SetPassword(config.Password).
			SetConnectTimeout(config.ConnectTimeout).
			SetAutoReconnect(true).
			SetConnectRetry(true).
			SetOrderMatters(false).
			SetOnConnectHandler(func(mqtt.Client) {
				m.setConnected()
				if m.log != nil {
					m.log.Infof("connected to %s", config.Broker)
				}
			}).
			SetConnectionLostHandler(func(_ mqtt.Client, err error) {
				if m.log != nil {
					m.log.Warnf("connection to %s lost: %v", config.Broker, err)
				}
			})
		m.client = mqtt.NewClient(opts)
	}
	return m, nil
}

// Connect connects to the broker. With connect retry enabled the paho
// client keeps retrying in the background after ctx expires.
func (m *MQTT) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	if err := wait(ctx, m.client.Connect()); err != nil {
		return fmt.Errorf("relay: mqtt connect: %w", err)
	}

	m.setConnected()
	return nil
}

// setConnected is also called by the paho client when a background connect
// retry succeeds.
func (m *MQTT) setConnected() {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
}

// Topic returns the topic a batch is published to.
func (m *MQTT) Topic(b *reading.Batch) string {
	return m.config.TopicPrefix + "/" + b.UUID.String()
}

// Publish implements Sink.
func (m *MQTT) Publish(ctx context.Context, b *reading.Batch) error {
	m.mu.RLock()
	connected, closed := m.connected, m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !connected {
		return ErrNotConnected
	}

	payload, err := m.config.Encoding.Marshal(b)
	if err != nil {
		return err
	}
	topic := m.Topic(b)
	if err := wait(ctx, m.client.Publish(topic, *m.config.QoS, m.config.Retained, payload)); err != nil {
		return fmt.Errorf("relay: mqtt publish to %s: %w", topic, err)
	}
	if m.log != nil {
		m.log.Debugf("published %d readings to %s", b.Len(), topic)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Sink = (*MQTT)(nil)
