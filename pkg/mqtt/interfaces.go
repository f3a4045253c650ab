package mqtt

import "context"

// Client is the MQTT transport used for actions, settings and pixel frames.
// Tests substitute an in-memory fake.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()

	// Subscribe registers handler for topic. Handlers may run concurrently
	// and may publish from inside the callback.
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Publish blocks until the broker acknowledges the message or a
	// timeout elapses
	Publish(topic string, qos byte, retained bool, payload []byte) error

	IsConnected() bool
}

// MessageHandler handles one inbound message
type MessageHandler func(Message)

// Message is an inbound MQTT message. Paho messages satisfy it directly.
type Message interface {
	Topic() string
	Payload() []byte
	Ack()
}
