package device

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/execlog"
	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

// Every gated attempt writes exactly one record, the action runs only for
// configured services, and the device always ends Idle.
func TestProperty_GateInvariants(t *testing.T) {
	base := t.TempDir()
	iter := 0
	configured := []string{"Pick", "Place", "Move"}
	candidates := []string{"Pick", "Place", "Move", "Convey", "ColorAndShapeDetection"}

	rapid.Check(t, func(rt *rapid.T) {
		iter++
		store, err := registry.Open(filepath.Join(base, fmt.Sprintf("doc-%d.xml", iter)),
			registry.Options{ID: "ned2", Services: descriptors(configured...)})
		if err != nil {
			rt.Fatalf("Open() error = %v", err)
		}
		defer store.Close() //nolint:errcheck // Test cleanup

		mem := &execlog.MemorySink{}
		dev, err := New(Config{ID: "ned2", Registry: store, Recorder: execlog.NewRecorder(mem)})
		if err != nil {
			rt.Fatal(err)
		}

		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			service := rapid.SampledFrom(candidates).Draw(rt, "service")
			fail := rapid.Bool().Draw(rt, "fail")

			invoked := false
			res := dev.Gate(context.Background(), service, func(context.Context, capability.Set) error {
				invoked = true
				if fail {
					return errors.New("scripted failure")
				}
				return nil
			})

			_, qerr := store.Query(service)
			present := qerr == nil
			if invoked != present {
				rt.Fatalf("service %s present=%v but invoked=%v", service, present, invoked)
			}
			if res.Success != (present && !fail) {
				rt.Fatalf("service %s fail=%v: Success = %v", service, fail, res.Success)
			}
			if mem.Len() != i+1 {
				rt.Fatalf("after %d gates: %d records", i+1, mem.Len())
			}
			st, err := dev.State()
			if err != nil || st != registry.StateIdle {
				rt.Fatalf("state = %s, %v; want Idle", st, err)
			}
		}
	})
}
