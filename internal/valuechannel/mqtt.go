package valuechannel

import (
	"context"
	"fmt"
	"sync"

	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/mqtt"
)

// Broker is the subset of *mqtt.Client used by MQTT.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTT stores values as retained messages. A read subscribes to the value
// topic, takes the first (retained) message and unsubscribes.
type MQTT struct {
	broker Broker
	qos    byte

	// The client keeps one handler per topic, so reads are serialised.
	readMu sync.Mutex
}

// NewMQTT creates an MQTT-backed channel.
func NewMQTT(broker Broker, qos byte) *MQTT {
	return &MQTT{broker: broker, qos: qos}
}

func topicFor(addr Address) string {
	return mqtt.Topics{}.Value(addr.Namespace, addr.Object, addr.Name)
}

// ReadFloat implements Channel.
func (c *MQTT) ReadFloat(ctx context.Context, addr Address) (float64, error) {
	data, err := c.read(ctx, addr)
	if err != nil {
		return 0, err
	}
	return decodeFloat(addr, data)
}

// WriteFloat implements Channel.
func (c *MQTT) WriteFloat(_ context.Context, addr Address, v float64) error {
	return c.write(addr, encodeFloat(v))
}

// ReadBlob implements Channel.
func (c *MQTT) ReadBlob(ctx context.Context, addr Address) ([]byte, error) {
	return c.read(ctx, addr)
}

// WriteBlob implements Channel.
func (c *MQTT) WriteBlob(_ context.Context, addr Address, data []byte) error {
	return c.write(addr, data)
}

func (c *MQTT) write(addr Address, data []byte) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if err := c.broker.Publish(topicFor(addr), data, c.qos, true); err != nil {
		return fmt.Errorf("writing %s: %w", addr, err)
	}
	return nil
}

func (c *MQTT) read(ctx context.Context, addr Address) ([]byte, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()

	topic := topicFor(addr)
	got := make(chan []byte, 1)
	err := c.broker.Subscribe(topic, c.qos, func(_ string, payload []byte) error {
		select {
		case got <- append([]byte(nil), payload...):
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", addr, err)
	}
	defer c.broker.Unsubscribe(topic) //nolint:errcheck // best effort, resubscribed on next read

	select {
	case data := <-got:
		return data, nil
	case <-ctx.Done():
		return nil, timeoutError(ctx, addr)
	}
}
