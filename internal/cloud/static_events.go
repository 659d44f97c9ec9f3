package cloud

import (
	"context"
	"sync"

	"github.com/topolane/topolane/internal/models"
)

// StaticEventSource is a deterministic EventSourceAdapter test double: each
// FetchEvents call returns every queued event with Timestamp > sinceTs.
type StaticEventSource struct {
	typ      string
	provider models.Provider

	mu     sync.Mutex
	events []CloudEvent
}

// NewStaticEventSource builds an event source pre-loaded with events.
func NewStaticEventSource(typ string, provider models.Provider, events []CloudEvent) *StaticEventSource {
	return &StaticEventSource{typ: typ, provider: provider, events: events}
}

func (s *StaticEventSource) Type() string             { return s.typ }
func (s *StaticEventSource) Provider() models.Provider { return s.provider }

func (s *StaticEventSource) FetchEvents(ctx context.Context, sinceTs int64) ([]CloudEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CloudEvent
	for _, e := range s.events {
		if e.Timestamp > sinceTs {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *StaticEventSource) HealthCheck(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{OK: true}, nil
}

// Push appends an event to the queue, used by tests to simulate ingestion.
func (s *StaticEventSource) Push(e CloudEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

var _ EventSourceAdapter = (*StaticEventSource)(nil)
