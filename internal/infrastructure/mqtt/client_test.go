package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/config"
)

// testConfig targets a local Mosquitto at 127.0.0.1:1883.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip skips the test when no broker is reachable.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}
	c, err := Connect(testConfig(clientID))
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.SystemStatus(), "runchain/system/status"},
		{topics.DeviceState("ned2"), "runchain/device/ned2/state"},
		{topics.DeviceExecution("wlkata"), "runchain/device/wlkata/execution"},
		{topics.Handoff("ned2", "wlkata"), "runchain/handoff/ned2/wlkata"},
		{topics.BuildStatus("bld-1"), "runchain/build/bld-1/status"},
		{topics.Value("mynamespace", "vPLC", "pression"), "runchain/value/mynamespace/vPLC/pression"},
		{topics.AllDeviceStates(), "runchain/device/+/state"},
		{topics.AllExecutions(), "runchain/device/+/execution"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("runchain-opts")
	cfg.Auth.Username = "line"
	cfg.Auth.Password = "secret"
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "runchain-opts" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "line" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set for TLS broker")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect disabled")
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal(statusPayload("core", "offline", "graceful_shutdown"), &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "core" || msg.Reason != "graceful_shutdown" {
		t.Errorf("payload = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339", msg.Timestamp)
	}

	if strings.Contains(string(statusPayload("core", "online", "")), "reason") {
		t.Error("online payload should omit empty reason")
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{subscriptions: map[string]subscription{}}

	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversized", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", nil, 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, func(string, []byte) error { return nil }), ErrInvalidTopic},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, func(string, []byte) error { return nil }), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	c := connectOrSkip(t, "runchain-test-roundtrip")

	topic := Topics{}.DeviceExecution(fmt.Sprintf("test-%d", time.Now().UnixNano()))
	got := make(chan []byte, 1)
	if err := c.Subscribe(topic, 1, func(_ string, payload []byte) error {
		got <- payload
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription(topic) || c.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}

	if err := c.PublishJSON(topic, map[string]string{"service": "Pick"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case p := <-got:
		if !strings.Contains(string(p), `"service":"Pick"`) {
			t.Errorf("payload = %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	if err := c.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(topic) {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	c := connectOrSkip(t, "runchain-test-panic")

	topic := fmt.Sprintf("runchain/test/panic-%d", time.Now().UnixNano())
	called := make(chan struct{}, 2)
	if err := c.Subscribe(topic, 1, func(string, []byte) error {
		called <- struct{}{}
		panic("boom")
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := c.Publish(topic, []byte("x"), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case <-called:
		case <-time.After(2 * time.Second):
			t.Fatalf("handler not called for message %d", i)
		}
	}
}
