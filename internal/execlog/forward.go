package execlog

import (
	"context"
	"fmt"
	"time"
)

// ExecutionWriter is the time series write used by InfluxSink.
// *influxdb.Client satisfies it.
type ExecutionWriter interface {
	WriteExecution(deviceID, service string, success bool, duration time.Duration, at time.Time)
}

// InfluxSink writes the service_execution series. Writes are batched and
// asynchronous, so Write never fails.
type InfluxSink struct {
	w ExecutionWriter
}

// NewInfluxSink wraps w.
func NewInfluxSink(w ExecutionWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Write implements Sink.
func (s *InfluxSink) Write(_ context.Context, rec Record) error {
	s.w.WriteExecution(rec.Device, rec.Service, rec.Success, rec.Duration, rec.Timestamp)
	return nil
}

// JSONPublisher publishes a value as JSON. *mqtt.Client satisfies it.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// PublishSink emits each record as a JSON event on a per-device topic.
type PublishSink struct {
	pub   JSONPublisher
	topic func(deviceID string) string
}

// NewPublishSink publishes to topic(rec.Device).
func NewPublishSink(pub JSONPublisher, topic func(deviceID string) string) *PublishSink {
	return &PublishSink{pub: pub, topic: topic}
}

// Write implements Sink.
func (s *PublishSink) Write(_ context.Context, rec Record) error {
	if err := s.pub.PublishJSON(s.topic(rec.Device), rec, false); err != nil {
		return fmt.Errorf("publishing execution record: %w", err)
	}
	return nil
}
