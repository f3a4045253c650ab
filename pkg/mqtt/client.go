package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/saaga0h/jeeves-wordclock/pkg/config"
)

const (
	// publishTimeout bounds how long Publish waits for the broker acknowledgement
	publishTimeout = 10 * time.Second

	// subscribeTimeout bounds a single SUBSCRIBE round trip
	subscribeTimeout = 10 * time.Second

	// Retained presence payloads on the display context topic
	presenceOnline  = `{"state":"online"}`
	presenceOffline = `{"state":"offline"}`
)

type subscription struct {
	qos     byte
	handler pahomqtt.MessageHandler
}

// pahoClient implements Client on top of Paho. The session is clean, so
// subscriptions are replayed after every reconnect.
type pahoClient struct {
	client pahomqtt.Client
	cfg    *config.Config
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewClient creates a Paho-backed client. When cfg.DisplayName is set the
// client keeps a retained online/offline presence on the display's context
// topic, with offline sent by the broker as the Last Will.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	c := &pahoClient{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTAddress())

	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%s", cfg.ServiceName, uuid.NewString()[:8])
	}
	opts.SetClientID(clientID)

	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	// handlers publish frames and wait for the ack, which deadlocks an
	// ordered router
	opts.SetOrderMatters(false)

	if cfg.DisplayName != "" {
		opts.SetWill(ContextTopic(cfg.DisplayName), presenceOffline, 1, true)
	}

	opts.OnConnect = c.onConnect

	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	}

	opts.OnReconnecting = func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	}

	c.client = pahomqtt.NewClient(opts)
	return c
}

// onConnect runs on the first connect and every reconnect
func (c *pahoClient) onConnect(client pahomqtt.Client) {
	c.logger.Info("Connected to MQTT broker", "broker", c.cfg.MQTTAddress())

	if c.cfg.DisplayName != "" {
		client.Publish(ContextTopic(c.cfg.DisplayName), 1, true, presenceOnline)
	}

	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		token := client.Subscribe(topic, sub.qos, sub.handler)
		if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
			c.logger.Error("Failed to restore subscription", "topic", topic, "error", token.Error())
			continue
		}
		c.logger.Debug("Restored subscription", "topic", topic)
	}
}

// Connect establishes a connection to the MQTT broker
func (c *pahoClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to MQTT broker", "broker", c.cfg.MQTTAddress())

	token := c.client.Connect()

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Disconnect publishes the offline presence and closes the connection
func (c *pahoClient) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")

	if c.cfg.DisplayName != "" && c.client.IsConnected() {
		token := c.client.Publish(ContextTopic(c.cfg.DisplayName), 1, true, presenceOffline)
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
}

// Subscribe subscribes to a topic and remembers it for reconnects
func (c *pahoClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	pahoHandler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg)
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: pahoHandler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, pahoHandler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("timed out subscribing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.logger.Info("Subscribed to MQTT topic", "topic", topic, "qos", qos)
	return nil
}

// Publish publishes a message to a topic, bounded by publishTimeout
func (c *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is currently connected
func (c *pahoClient) IsConnected() bool {
	return c.client.IsConnected()
}
