package execlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger is the operator-visible stream.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink persists or forwards records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Recorder fans records out to sinks in append order.
//
// Record calls are serialised so every sink sees records in the same order.
type Recorder struct {
	mu     sync.Mutex
	sinks  []Sink
	logger Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to the given sinks.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the operator log.
func (r *Recorder) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// AddSink appends a sink. Records already written are not replayed.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Record stamps rec and writes it to every sink.
//
// All sinks are attempted even when one fails; the returned error joins the
// individual failures. The stamped record is returned in every case.
func (r *Recorder) Record(ctx context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = "exe-" + uuid.NewString()[:8]
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}

	var errs []error
	for _, s := range r.sinks {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info(rec.Line(),
		"device_id", rec.Device,
		"service", rec.Service,
		"status", rec.Status(),
		"duration_s", rec.Duration.Seconds(),
		"error_kind", rec.ErrorKind,
		"record_id", rec.ID,
	)

	if len(errs) > 0 {
		err := fmt.Errorf("writing execution record %s: %w", rec.ID, errors.Join(errs...))
		r.logger.Error("execution record sink failed", "record_id", rec.ID, "error", err)
		return rec, err
	}
	return rec, nil
}
