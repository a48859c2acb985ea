package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/execlog"
	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

func descriptors(names ...string) []registry.ServiceDescriptor {
	out := make([]registry.ServiceDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, registry.ServiceDescriptor{Name: n, DriverFunction: n, Effector: "gripper"})
	}
	return out
}

type fixture struct {
	dev   *Device
	store *registry.Store
	log   *execlog.MemorySink
}

// newFixture builds a device over a temp registry listing services.
func newFixture(t *testing.T, services ...string) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ned2.aas.xml")
	store, err := registry.Open(path, registry.Options{ID: "ned2", Services: descriptors(services...)})
	if err != nil {
		t.Fatalf("registry.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() }) //nolint:errcheck // Test cleanup

	mem := &execlog.MemorySink{}
	dev, err := New(Config{ID: "ned2", Registry: store, Recorder: execlog.NewRecorder(mem)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{dev: dev, store: store, log: mem}
}

func (f *fixture) state(t *testing.T) registry.State {
	t.Helper()
	st, err := f.dev.State()
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	return st
}

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t, "Pick")
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing id", Config{Registry: f.store}},
		{"missing registry", Config{ID: "ned2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_ResetsStaleActive(t *testing.T) {
	f := newFixture(t, "Pick")
	if err := f.store.SetState(registry.StateActive); err != nil {
		t.Fatal(err)
	}
	dev, err := New(Config{ID: "ned2", Registry: f.store})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if st, _ := dev.State(); st != registry.StateIdle {
		t.Errorf("state after New = %s, want Idle", st)
	}
}

func TestGate_Success(t *testing.T) {
	f := newFixture(t, "Pick", "Place", "Move")
	f.dev.now = fakeClock(500 * time.Millisecond)

	var during registry.State
	res := f.dev.Gate(context.Background(), "Pick", func(_ context.Context, _ capability.Set) error {
		during, _ = f.dev.State()
		return nil
	})

	if !res.Success || res.Err != nil {
		t.Fatalf("Gate() = %+v, want success", res)
	}
	if during != registry.StateActive {
		t.Errorf("state during action = %s, want Active", during)
	}
	if got := f.state(t); got != registry.StateIdle {
		t.Errorf("state after = %s, want Idle", got)
	}
	if res.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", res.Duration)
	}

	recs := f.log.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].ID != res.RecordID || !recs[0].Success || recs[0].Service != "Pick" || recs[0].Device != "ned2" {
		t.Errorf("record = %+v", recs[0])
	}
	if recs[0].Line() != "Service: Pick, Status: SUCCESS, Execution Time: 0.50 seconds" {
		t.Errorf("line = %q", recs[0].Line())
	}
}

func TestGate_ServiceUnavailable(t *testing.T) {
	// Registry {Pick, Place, Move}; gating Convey must not run the action.
	f := newFixture(t, "Pick", "Place", "Move")

	invoked := false
	res := f.dev.Gate(context.Background(), "Convey", func(context.Context, capability.Set) error {
		invoked = true
		return nil
	})

	if invoked {
		t.Error("action invoked for an absent service")
	}
	if res.Success || !errors.Is(res.Err, ErrServiceUnavailable) || !errors.Is(res.Err, registry.ErrNotFound) {
		t.Errorf("Gate() err = %v, want ServiceUnavailable wrapping NotFound", res.Err)
	}
	if res.Kind() != "service_unavailable" {
		t.Errorf("Kind() = %q", res.Kind())
	}
	if got := f.state(t); got != registry.StateIdle {
		t.Errorf("state = %s, want Idle", got)
	}
	recs := f.log.Records()
	if len(recs) != 1 || recs[0].Success || recs[0].Duration != 0 || recs[0].ErrorKind != "service_unavailable" {
		t.Errorf("records = %+v, want one zero-duration failure", recs)
	}
}

func TestGate_CaseSensitiveService(t *testing.T) {
	f := newFixture(t, "Pick")
	res := f.dev.Gate(context.Background(), "pick", func(context.Context, capability.Set) error { return nil })
	if !errors.Is(res.Err, ErrServiceUnavailable) {
		t.Errorf("Gate(pick) err = %v, want ServiceUnavailable", res.Err)
	}
}

func TestGate_MalformedRegistry(t *testing.T) {
	f := newFixture(t, "Pick")
	if err := os.WriteFile(f.store.Path(), []byte("<environment><submodels>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Reload(); !errors.Is(err, registry.ErrParse) {
		t.Fatalf("Reload() error = %v, want ErrParse", err)
	}

	invoked := false
	res := f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error {
		invoked = true
		return nil
	})
	if invoked {
		t.Error("action invoked with a malformed registry")
	}
	if !errors.Is(res.Err, ErrServiceUnavailable) || !errors.Is(res.Err, registry.ErrParse) {
		t.Errorf("Gate() err = %v, want ServiceUnavailable wrapping ErrParse", res.Err)
	}
	if f.log.Len() != 1 {
		t.Errorf("records = %d, want 1", f.log.Len())
	}
}

func TestGate_Faulted(t *testing.T) {
	f := newFixture(t, "Pick")
	if err := f.dev.SetState(registry.StateError); err != nil {
		t.Fatal(err)
	}

	invoked := false
	action := func(context.Context, capability.Set) error {
		invoked = true
		return nil
	}
	res := f.dev.Gate(context.Background(), "Pick", action)
	if invoked || !errors.Is(res.Err, ErrDeviceFaulted) {
		t.Errorf("faulted gate: invoked = %v, err = %v", invoked, res.Err)
	}
	if got := f.state(t); got != registry.StateError {
		t.Errorf("state = %s, Error must persist until reset", got)
	}
	if recs := f.log.Records(); len(recs) != 1 || recs[0].Duration != 0 || recs[0].ErrorKind != "device_faulted" {
		t.Errorf("records = %+v", recs)
	}

	// An operator reset re-enables the gate.
	if err := f.dev.SetState(registry.StateIdle); err != nil {
		t.Fatal(err)
	}
	if res := f.dev.Gate(context.Background(), "Pick", action); !res.Success || !invoked {
		t.Errorf("gate after reset = %+v", res)
	}
}

func TestGate_Busy(t *testing.T) {
	f := newFixture(t, "Pick")
	if err := f.dev.SetState(registry.StateActive); err != nil {
		t.Fatal(err)
	}
	res := f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error {
		t.Error("action invoked while busy")
		return nil
	})
	if !errors.Is(res.Err, ErrDeviceBusy) {
		t.Errorf("err = %v, want ErrDeviceBusy", res.Err)
	}
}

func TestGate_ActionFailure(t *testing.T) {
	f := newFixture(t, "Pick")
	f.dev.now = fakeClock(time.Second)

	res := f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error {
		return capability.ErrGraspFailure
	})
	if res.Success || !errors.Is(res.Err, capability.ErrGraspFailure) {
		t.Errorf("Gate() = %+v", res)
	}
	if res.Kind() != "grasp_failure" {
		t.Errorf("Kind() = %q", res.Kind())
	}
	if got := f.state(t); got != registry.StateIdle {
		t.Errorf("state = %s, want Idle", got)
	}
	recs := f.log.Records()
	if len(recs) != 1 || recs[0].Success || recs[0].Duration != time.Second {
		t.Errorf("records = %+v, want one timed failure", recs)
	}
}

func TestGate_PanicRecovered(t *testing.T) {
	f := newFixture(t, "Pick")
	res := f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error {
		panic("driver crashed")
	})
	if !errors.Is(res.Err, ErrActionPanic) {
		t.Errorf("err = %v, want ErrActionPanic", res.Err)
	}
	if got := f.state(t); got != registry.StateIdle {
		t.Errorf("state = %s, want Idle", got)
	}
	if f.log.Len() != 1 {
		t.Errorf("records = %d, want 1", f.log.Len())
	}
}

func TestGate_CancelledContext(t *testing.T) {
	f := newFixture(t, "Pick")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.dev.Gate(ctx, "Pick", func(context.Context, capability.Set) error {
		t.Error("action invoked on a cancelled context")
		return nil
	})
	if res.Kind() != "canceled" {
		t.Errorf("Kind() = %q, want canceled", res.Kind())
	}
	if f.log.Len() != 1 {
		t.Error("cancelled attempt not recorded")
	}
}

func TestGate_RecorderFailureDoesNotFailAction(t *testing.T) {
	f := newFixture(t, "Pick")
	f.dev.recorder = execlog.NewRecorder(execlog.SinkFunc(func(context.Context, execlog.Record) error {
		return errors.New("disk full")
	}))
	res := f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error { return nil })
	if !res.Success {
		t.Errorf("Gate() = %+v, a log failure must not fail the action", res)
	}
}

// idleFailRegistry refuses to return to Idle.
type idleFailRegistry struct {
	*registry.Store
}

func (r idleFailRegistry) SetState(st registry.State) error {
	if st == registry.StateIdle {
		return errors.New("document locked")
	}
	return r.Store.SetState(st)
}

func TestGate_RestoreFailureRecorded(t *testing.T) {
	f := newFixture(t, "Pick")
	f.dev.reg = idleFailRegistry{f.store}
	f.dev.sm = stateMachine{reg: f.dev.reg}

	res := f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error { return nil })

	if res.Success || res.Err == nil || !strings.Contains(res.Err.Error(), "restoring idle") {
		t.Fatalf("Gate() = %+v, want restore failure", res)
	}
	recs := f.log.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].ID != res.RecordID || recs[0].Success || recs[0].Error != res.Err.Error() {
		t.Errorf("record = %+v, want the failed result", recs[0])
	}
}

func TestGate_PublishesStates(t *testing.T) {
	f := newFixture(t, "Pick")
	var mu sync.Mutex
	var seen []registry.State
	f.dev.publisher = PublisherFunc(func(id string, st registry.State) error {
		mu.Lock()
		defer mu.Unlock()
		if id != "ned2" {
			t.Errorf("published for %q", id)
		}
		seen = append(seen, st)
		return errors.New("broker down")
	})

	f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error { return nil })

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != registry.StateActive || seen[1] != registry.StateIdle {
		t.Errorf("published = %v, want [Active Idle]", seen)
	}
}

func TestGate_Serialised(t *testing.T) {
	f := newFixture(t, "Pick")
	var inFlight, maxInFlight int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.dev.Gate(context.Background(), "Pick", func(context.Context, capability.Set) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("max concurrent actions = %d, want 1", maxInFlight)
	}
	if f.log.Len() != 8 {
		t.Errorf("records = %d, want 8", f.log.Len())
	}
}

func TestSetState_Invalid(t *testing.T) {
	f := newFixture(t, "Pick")
	if err := f.dev.SetState("Paused"); !errors.Is(err, registry.ErrInvalidState) {
		t.Errorf("SetState(Paused) error = %v", err)
	}
	if got := f.state(t); got != registry.StateIdle {
		t.Errorf("state = %s, want Idle", got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrServiceUnavailable, "service_unavailable"},
		{ErrDeviceFaulted, "device_faulted"},
		{ErrDeviceBusy, "device_busy"},
		{capability.ErrSensorTimeout, "sensor_timeout"},
		{capability.ErrGraspCheckTimeout, "grasp_check_timeout"},
		{capability.ErrGraspFailure, "grasp_failure"},
		{capability.ErrPieceMismatch, "piece_mismatch"},
		{capability.ErrNotDetected, "not_detected"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "deadline_exceeded"},
		{errors.New("motor stalled"), "action_failed"},
		// An unavailable service reports as such even when the cause is a
		// cancelled context.
		{errors.Join(ErrServiceUnavailable, context.Canceled), "service_unavailable"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
