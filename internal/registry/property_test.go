package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"pgregory.net/rapid"
)

// openRapidStore opens a Store in a fresh subdirectory of base for one
// rapid iteration.
func openRapidStore(rt *rapid.T, base string, iter *int, names []string) *Store {
	*iter++
	path := filepath.Join(base, fmt.Sprintf("iter-%d", *iter), "doc.xml")
	s, err := Open(path, Options{Services: seedServices(names...)})
	if err != nil {
		rt.Fatalf("Open() error = %v", err)
	}
	return s
}

var serviceName = rapid.StringMatching(`[A-Z][a-zA-Z]{0,10}`)

// persistNames mixes plain names, padded spellings of them, and names that
// collide with the document's container collections.
var persistNames = []string{
	"Pick", " Pick", "Pick ", "Place", "Place\t", "Move", "Convey",
	servicesID, statesID, " ",
}

// TestProperty_SetStateSingleActive checks that after any sequence of state
// updates exactly one flag is true and it is the last valid state set.
func TestProperty_SetStateSingleActive(t *testing.T) {
	base := t.TempDir()
	iter := 0

	rapid.Check(t, func(rt *rapid.T) {
		s := openRapidStore(rt, base, &iter, []string{"Pick"})
		defer s.Close() //nolint:errcheck // Per-iteration cleanup

		names := rapid.SliceOfN(rapid.SampledFrom([]string{"Idle", "Active", "Error", "idle", "Busy", ""}), 1, 20).Draw(rt, "states")

		want := StateIdle
		for _, n := range names {
			err := s.SetState(State(n))
			if State(n).IsValid() {
				if err != nil {
					rt.Fatalf("SetState(%q) error = %v", n, err)
				}
				want = State(n)
			} else if !errors.Is(err, ErrInvalidState) {
				rt.Fatalf("SetState(%q) error = %v, want ErrInvalidState", n, err)
			}

			flags, err := s.States()
			if err != nil {
				rt.Fatalf("States() error = %v", err)
			}
			got, ok := flags.Active()
			if !ok || got != want {
				rt.Fatalf("after SetState(%q) flags = %v, want only %s", n, flags, want)
			}
		}
	})
}

// TestProperty_AddRemoveRoundTrip checks that adding then removing a new
// name restores the previous set of names in order.
func TestProperty_AddRemoveRoundTrip(t *testing.T) {
	base := t.TempDir()
	iter := 0

	rapid.Check(t, func(rt *rapid.T) {
		initial := rapid.SliceOfNDistinct(serviceName, 0, 8, rapid.ID[string]).Draw(rt, "initial")
		s := openRapidStore(rt, base, &iter, initial)
		defer s.Close() //nolint:errcheck // Per-iteration cleanup

		name := serviceName.Filter(func(n string) bool { return !slices.Contains(initial, n) }).Draw(rt, "name")

		before, err := s.List()
		if err != nil {
			rt.Fatal(err)
		}
		if err := s.Add(ServiceDescriptor{Name: name, DriverFunction: "f"}); err != nil {
			rt.Fatalf("Add(%q) error = %v", name, err)
		}
		if _, err := s.Query(name); err != nil {
			rt.Fatalf("Query(%q) after Add error = %v", name, err)
		}
		if err := s.Remove(name); err != nil {
			rt.Fatalf("Remove(%q) error = %v", name, err)
		}
		after, err := s.List()
		if err != nil {
			rt.Fatal(err)
		}
		if !slices.Equal(before, after) {
			rt.Fatalf("services after round trip = %v, want %v", after, before)
		}
	})
}

// TestProperty_PersistedMatchesMemory checks that a reopened document holds
// exactly what the Store reported after a random sequence of mutations.
func TestProperty_PersistedMatchesMemory(t *testing.T) {
	base := t.TempDir()
	iter := 0

	rapid.Check(t, func(rt *rapid.T) {
		s := openRapidStore(rt, base, &iter, nil)

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			name := rapid.SampledFrom(persistNames).Draw(rt, "name")
			pad := rapid.SampledFrom([]string{"", " ", "\t"}).Draw(rt, "pad")
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				_ = s.Add(ServiceDescriptor{Name: name, Input: pad + fmt.Sprint(i)}) //nolint:errcheck // Duplicates allowed to fail
			case 1:
				_ = s.Remove(name) //nolint:errcheck // Absent allowed to fail
			case 2:
				_ = s.Configure(ServiceDescriptor{Name: name, Output: fmt.Sprint(i) + pad}) //nolint:errcheck // Absent allowed to fail
			case 3:
				_ = s.SetState(rapid.SampledFrom(ValidStates).Draw(rt, "state")) //nolint:errcheck // Always valid
			}
		}

		wantServices, _ := s.List()
		wantFlags, _ := s.States()
		s.Close() //nolint:errcheck // Reopened below

		again, err := Open(s.Path(), Options{})
		if err != nil {
			rt.Fatalf("reopen error = %v", err)
		}
		defer again.Close() //nolint:errcheck // Per-iteration cleanup

		gotServices, _ := again.List()
		gotFlags, _ := again.States()
		if !slices.Equal(gotServices, wantServices) {
			rt.Fatalf("persisted services = %v, want %v", gotServices, wantServices)
		}
		for _, st := range ValidStates {
			if gotFlags[st] != wantFlags[st] {
				rt.Fatalf("persisted flags = %v, want %v", gotFlags, wantFlags)
			}
		}
	})
}
