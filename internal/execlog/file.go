package execlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink appends one text line per record to a file.
//
// The file is opened in append mode for each write so an external rotation
// or truncation is picked up without restarting.
type FileSink struct {
	path string
}

// NewFileSink returns a sink appending to path. Parent directories are
// created on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the log file path.
func (s *FileSink) Path() string { return s.path }

// Write appends rec.Line().
func (s *FileSink) Write(_ context.Context, rec Record) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating execution log directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) //nolint:gosec // path from configuration
	if err != nil {
		return fmt.Errorf("opening execution log: %w", err)
	}
	if _, err := f.WriteString(rec.Line() + "\n"); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("appending execution log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing execution log: %w", err)
	}
	return nil
}
