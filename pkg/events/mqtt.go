package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Defaults for the MQTT publisher.
const (
	DefaultMQTTClientID    = "steady-client"
	DefaultMQTTTopicPrefix = "steady"
	DefaultMQTTQoS         = 1
	DefaultConnectTimeout  = 10 * time.Second
)

// ErrMissingBroker indicates an MQTT publisher without a broker URL.
var ErrMissingBroker = errors.New("events: mqtt broker is required")

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// MQTTPublisher publishes events to topics under a prefix. The event type's
// dots become topic levels: session.completed is published to
// <prefix>/session/completed.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *slog.Logger
}

// DialMQTT connects to the broker and returns a publisher.
func DialMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, ErrMissingBroker
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultMQTTClientID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "events.mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	return NewMQTTPublisher(client, cfg.TopicPrefix, cfg.QoS, cfg.Logger), nil
}

// NewMQTTPublisher wraps an already configured client.
func NewMQTTPublisher(client mqtt.Client, prefix string, qos byte, logger *slog.Logger) *MQTTPublisher {
	if prefix == "" {
		prefix = DefaultMQTTTopicPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
		logger: logger.With("component", "events.mqtt"),
	}
}

// Topic returns the topic an event of type t is published to.
func (p *MQTTPublisher) Topic(t Type) string {
	return p.prefix + "/" + strings.ReplaceAll(string(t), ".", "/")
}

// Publish sends e and waits for the broker to acknowledge it or for ctx to
// end.
func (p *MQTTPublisher) Publish(ctx context.Context, e *Event) error {
	payload, err := e.Bytes()
	if err != nil {
		return err
	}

	topic := p.Topic(e.Type)
	token := p.client.Publish(topic, p.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Debug("event published", "topic", topic)
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

// IsConnected reports the broker connection state.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}
