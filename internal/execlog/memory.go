package execlog

import (
	"context"
	"sync"
)

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// Write appends rec.
func (s *MemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of all records in append order.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Count returns the number of records for service, or all records when
// service is empty. success filters by outcome when non-nil.
func (s *MemorySink) Count(service string, success *bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if service != "" && r.Service != service {
			continue
		}
		if success != nil && r.Success != *success {
			continue
		}
		n++
	}
	return n
}

// Len returns the number of records.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
