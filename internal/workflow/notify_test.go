package workflow

import (
	"errors"
	"testing"

	"github.com/nothineazi/robotic-chain-control/internal/device"
)

type published struct {
	topic    string
	v        any
	retained bool
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	p.msgs = append(p.msgs, published{topic, v, retained})
	return p.err
}

func TestPublishNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewPublishNotifier(pub,
		func(id string) string { return "build/" + id },
		func(from, to string) string { return "handoff/" + from + "/" + to })

	if err := n.BuildStatus(TaskInfo{ID: "bld-1", Status: StatusRunning}); err != nil {
		t.Fatalf("BuildStatus() error = %v", err)
	}
	n.Handoff("ned2", "wlkata", device.Result{Service: "Move", Err: device.ErrServiceUnavailable})

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.msgs))
	}
	if m := pub.msgs[0]; m.topic != "build/bld-1" || !m.retained {
		t.Errorf("status message = %+v", m)
	}
	ev, ok := pub.msgs[1].v.(handoffEvent)
	if !ok || pub.msgs[1].topic != "handoff/ned2/wlkata" || ev.Success || ev.ErrorKind != "service_unavailable" {
		t.Errorf("hand-off message = %+v", pub.msgs[1])
	}

	pub.err = errors.New("broker down")
	if err := n.BuildStatus(TaskInfo{ID: "bld-1"}); err == nil {
		t.Error("BuildStatus() swallowed the publish error")
	}
}
