package workflow

import (
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/device"
)

// Publisher publishes a value as JSON. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// PublishNotifier publishes task snapshots and hand-off events.
type PublishNotifier struct {
	pub          Publisher
	statusTopic  func(taskID string) string
	handoffTopic func(from, to string) string
}

// NewPublishNotifier creates a notifier. Task snapshots are retained so a
// late subscriber sees the last status.
func NewPublishNotifier(pub Publisher, statusTopic func(taskID string) string, handoffTopic func(from, to string) string) *PublishNotifier {
	return &PublishNotifier{pub: pub, statusTopic: statusTopic, handoffTopic: handoffTopic}
}

// BuildStatus implements StatusNotifier.
func (n *PublishNotifier) BuildStatus(info TaskInfo) error {
	return n.pub.PublishJSON(n.statusTopic(info.ID), info, true)
}

type handoffEvent struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Service   string    `json:"service"`
	Success   bool      `json:"success"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handoff is a HandoffFunc that publishes the event. Publish errors are
// dropped; the gate has already recorded the execution.
func (n *PublishNotifier) Handoff(from, to string, res device.Result) {
	_ = n.pub.PublishJSON(n.handoffTopic(from, to), handoffEvent{
		From:      from,
		To:        to,
		Service:   res.Service,
		Success:   res.Success,
		ErrorKind: res.Kind(),
		Timestamp: time.Now().UTC(),
	}, false)
}
