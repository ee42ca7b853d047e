// Package events provides the append-only event journal of the agent core
// plus per-request watch channels for live consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Event types emitted by the core.
const (
	TypeRouterDecision    = "router_decision"
	TypeSystem2Step       = "system2_step"
	TypeCriticResult      = "critic_result"
	TypeWebbrowseBlocked  = "webbrowse_blocked"
	TypeFallbackTriggered = "fallback_triggered"
	TypeAgentComplete     = "agent_complete"
)

const defaultBuffer = 16

// Record is one journal entry.
type Record struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type watchRegistration struct {
	ch chan Record
}

// Journal is an in-process append-only event log. Appends are cheap; slow
// watchers are skipped rather than blocking the emitter.
type Journal struct {
	mu       sync.RWMutex
	records  []Record
	watchers map[string]map[uint64]*watchRegistration
	nextID   uint64
	clock    func() time.Time
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{
		watchers: make(map[string]map[uint64]*watchRegistration),
		clock:    time.Now,
	}
}

// Append records an event and dispatches it to the request's watchers.
func (j *Journal) Append(eventType, requestID string, data map[string]any) Record {
	record := Record{
		Type:      eventType,
		RequestID: requestID,
		Timestamp: j.clock(),
		Data:      data,
	}

	j.mu.Lock()
	j.records = append(j.records, record)
	watchers := j.watchers[requestID]
	copies := make([]*watchRegistration, 0, len(watchers))
	for _, reg := range watchers {
		copies = append(copies, reg)
	}
	j.mu.Unlock()

	for _, reg := range copies {
		select {
		case reg.ch <- record:
		default:
		}
	}
	return record
}

// Watch returns a channel receiving future events for requestID. The channel
// closes when ctx is cancelled.
func (j *Journal) Watch(ctx context.Context, requestID string) (<-chan Record, error) {
	if requestID == "" {
		return nil, errors.New("events: request id is required")
	}

	ch := make(chan Record, defaultBuffer)
	id := atomic.AddUint64(&j.nextID, 1)

	j.mu.Lock()
	if _, ok := j.watchers[requestID]; !ok {
		j.watchers[requestID] = make(map[uint64]*watchRegistration)
	}
	j.watchers[requestID][id] = &watchRegistration{ch: ch}
	j.mu.Unlock()

	go func() {
		<-ctx.Done()
		j.removeWatcher(requestID, id)
	}()

	return ch, nil
}

// Snapshot returns a copy of every record appended so far, in order.
func (j *Journal) Snapshot() []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Record(nil), j.records...)
}

// ForRequest returns the records appended for one request, in order.
func (j *Journal) ForRequest(requestID string) []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Record
	for _, record := range j.records {
		if record.RequestID == requestID {
			out = append(out, record)
		}
	}
	return out
}

func (j *Journal) removeWatcher(requestID string, id uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	watchers := j.watchers[requestID]
	if watchers == nil {
		return
	}
	if reg, ok := watchers[id]; ok {
		delete(watchers, id)
		close(reg.ch)
	}
	if len(watchers) == 0 {
		delete(j.watchers, requestID)
	}
}
