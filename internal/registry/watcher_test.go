package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type reloadResult struct {
	changed bool
	err     error
}

func startWatch(t *testing.T, s *Store) <-chan reloadResult {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	results := make(chan reloadResult, 16)
	err := s.Watch(ctx, 30*time.Millisecond, func(changed bool, err error) {
		results <- reloadResult{changed, err}
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	return results
}

// replaceFile swaps path's contents the way an external tool would.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := filepath.Join(filepath.Dir(path), "incoming.tmp")
	if err := os.WriteFile(tmp, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func waitReload(t *testing.T, results <-chan reloadResult) reloadResult {
	t.Helper()
	for {
		select {
		case r := <-results:
			if r.changed || r.err != nil {
				return r
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestWatch_ReloadsExternalReplacement(t *testing.T) {
	s := openTestStore(t, "Other")
	results := startWatch(t, s)

	replaceFile(t, s.Path(), sampleDocument)
	if r := waitReload(t, results); r.err != nil {
		t.Fatalf("reload error = %v", r.err)
	}

	if _, err := s.Query("Pick"); err != nil {
		t.Errorf("Query(Pick) after external replace error = %v", err)
	}
	if _, err := s.Query("Other"); err == nil {
		t.Error("Query(Other) should fail after external replace")
	}
}

func TestWatch_MalformedReplacementReportsParseError(t *testing.T) {
	s := openTestStore(t, "Pick")
	results := startWatch(t, s)

	replaceFile(t, s.Path(), "<environment><submodels>")
	if r := waitReload(t, results); !errors.Is(r.err, ErrParse) {
		t.Fatalf("reload error = %v, want ErrParse", r.err)
	}
	if _, err := s.Query("Pick"); !errors.Is(err, ErrParse) {
		t.Errorf("Query() error = %v, want ErrParse", err)
	}

	replaceFile(t, s.Path(), sampleDocument)
	if r := waitReload(t, results); r.err != nil {
		t.Fatalf("reload error = %v", r.err)
	}
	if _, err := s.Query("Pick"); err != nil {
		t.Errorf("Query() after fix error = %v", err)
	}
}

func TestWatch_OwnCommitsDoNotReportChange(t *testing.T) {
	s := openTestStore(t, "Pick")
	results := startWatch(t, s)

	if err := s.Add(ServiceDescriptor{Name: "Place"}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-results:
		if r.changed || r.err != nil {
			t.Errorf("own commit produced reload result %+v", r)
		}
	case <-time.After(300 * time.Millisecond):
	}
}
