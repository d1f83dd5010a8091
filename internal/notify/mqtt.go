package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/geekuality/posti-delivery-dates/internal/view"
)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix
	DefaultTopicPrefix = "postid"

	mqttConnectTimeout      = 10 * time.Second
	mqttKeepAlive           = 60 * time.Second
	mqttMaxReconnectBackoff = time.Minute
	mqttPublishTimeout      = 5 * time.Second

	// publishQoS is at-least-once; state topics are retained so late
	// subscribers see the current view immediately
	publishQoS = 1
)

// MQTTConfig holds the MQTT publisher settings.
type MQTTConfig struct {
	// Enabled turns the MQTT publisher on
	Enabled bool `yaml:"enabled"`

	// Broker is the broker URL, e.g. "tcp://localhost:1883"
	Broker string `yaml:"broker"`

	// TopicPrefix prefixes every state topic; defaults to "postid"
	TopicPrefix string `yaml:"topicPrefix,omitempty"`

	// ClientID overrides the generated MQTT client ID
	ClientID string `yaml:"clientId,omitempty"`

	// Username and Password are optional broker credentials
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GetTopicPrefix returns the topic prefix, using the default if unset.
func (c *MQTTConfig) GetTopicPrefix() string {
	if c.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return c.TopicPrefix
}

// mqttPublisher publishes views as retained JSON messages on
// {topicPrefix}/{postalCode}/state.
type mqttPublisher struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(cfg *MQTTConfig) (view.Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("postid-%d", time.Now().Unix())
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(mqttMaxReconnectBackoff)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("Connected to MQTT broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT connection lost, will reconnect", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	return &mqttPublisher{
		client:      client,
		topicPrefix: cfg.GetTopicPrefix(),
	}, nil
}

// Publish sends the view as retained JSON on the code's state topic.
func (p *mqttPublisher) Publish(_ context.Context, postalCode string, v view.View) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal view for code '%s': %w", postalCode, err)
	}

	topic := fmt.Sprintf("%s/%s/state", p.topicPrefix, postalCode)
	token := p.client.Publish(topic, publishQoS, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}
