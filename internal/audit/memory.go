package audit

import (
	"context"
	"sync"
)

// MemorySink keeps events in process memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) History(_ context.Context, tenantID, remittanceID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Event{}
	for _, e := range s.events {
		if e.TenantID == tenantID && e.RemittanceID == remittanceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Count returns how many events of the given type were recorded for a remittance.
func (s *MemorySink) Count(remittanceID string, eventType EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if e.RemittanceID == remittanceID && e.EventType == eventType {
			n++
		}
	}
	return n
}
