package state

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
	id "github.com/xudanli/tripnaraht-sub002/internal/utils/id"
)

// Defaults applied to freshly created states.
const (
	DefaultDays       = 1
	DefaultDayStart   = "10:00"
	DefaultDayEnd     = "22:00"
	DefaultLunchMin   = 60
	DefaultLunchFrom  = "11:30"
	DefaultLunchUntil = "13:30"
	DefaultMaxSteps   = 8
)

// Options tweak the initial state produced by Create.
type Options struct {
	RequestID string
	TripID    string
	Days      int
	MaxSteps  int
	Pacing    Pacing
}

// Store owns the working memory of in-flight requests. Updates are
// copy-on-write: every mutation clones the current value, applies the change
// to the clone and publishes it. Concurrent Update calls for one request id
// are serialized with a per-id lock; true concurrent ownership of one id is
// a caller bug, the lock just keeps it from corrupting memory.
type Store struct {
	mu     sync.RWMutex
	states map[string]*AgentState
	locks  map[string]*sync.Mutex
	logger logging.Logger
}

// NewStore creates an empty state store.
func NewStore(logger logging.Logger) *Store {
	return &Store{
		states: make(map[string]*AgentState),
		locks:  make(map[string]*sync.Mutex),
		logger: logging.OrNop(logger),
	}
}

// Create builds a new state with default trip settings and registers it.
func (s *Store) Create(userInput string, opts Options) *AgentState {
	requestID := opts.RequestID
	if requestID == "" {
		requestID = id.NewRequestID()
	}
	days := opts.Days
	if days < 1 {
		days = DefaultDays
	}
	maxSteps := opts.MaxSteps
	if maxSteps < 1 {
		maxSteps = DefaultMaxSteps
	}
	pacing := opts.Pacing
	if pacing == "" {
		pacing = PacingNormal
	}

	boundaries := make([]DayBoundary, days)
	for i := range boundaries {
		boundaries[i] = DayBoundary{Start: DefaultDayStart, End: DefaultDayEnd}
	}

	st := &AgentState{
		RequestID: requestID,
		UserInput: strings.TrimSpace(userInput),
		Trip: Trip{
			TripID:        opts.TripID,
			Days:          days,
			DayBoundaries: boundaries,
			LunchBreak: LunchBreak{
				Enabled:     true,
				DurationMin: DefaultLunchMin,
				Window:      [2]string{DefaultLunchFrom, DefaultLunchUntil},
			},
			Pacing: pacing,
		},
		React:  React{MaxSteps: maxSteps},
		Result: Result{Status: StatusDraft},
	}

	s.mu.Lock()
	s.states[requestID] = st
	s.locks[requestID] = &sync.Mutex{}
	s.mu.Unlock()

	s.logger.Debug("State created: request_id=%s days=%d max_steps=%d", requestID, days, maxSteps)
	return st.Clone()
}

// Get returns a copy of the current state for id, or nil when unknown.
func (s *Store) Get(requestID string) *AgentState {
	s.mu.RLock()
	st := s.states[requestID]
	s.mu.RUnlock()
	return st.Clone()
}

// Update clones the current state, applies mutate to the clone and publishes
// it. The returned handle is the only valid view of the new state. Once the
// result status is terminal the state is frozen and Update returns the
// current value unchanged.
func (s *Store) Update(requestID string, mutate func(*AgentState)) (*AgentState, error) {
	lock, err := s.lockFor(requestID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := s.states[requestID]
	s.mu.RUnlock()
	if current == nil {
		return nil, fmt.Errorf("state %q deleted during update", requestID)
	}

	if current.Result.Status.Terminal() {
		s.logger.Warn("Update ignored for terminal state: request_id=%s status=%s",
			requestID, current.Result.Status)
		return current.Clone(), nil
	}

	next := current.Clone()
	mutate(next)

	s.mu.Lock()
	s.states[requestID] = next
	s.mu.Unlock()

	return next.Clone(), nil
}

// UpdateNested sets a single value addressed by a field path such as
// ["result", "status"]. It covers the handful of paths external callers need;
// structured mutation should go through Update.
func (s *Store) UpdateNested(requestID string, path []string, value any) (*AgentState, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return s.Update(requestID, func(st *AgentState) {
		if err := setPath(st, path, value); err != nil {
			s.logger.Warn("UpdateNested failed: request_id=%s path=%v: %v", requestID, path, err)
		}
	})
}

// Delete discards the state for id.
func (s *Store) Delete(requestID string) {
	s.mu.Lock()
	delete(s.states, requestID)
	delete(s.locks, requestID)
	s.mu.Unlock()
}

func (s *Store) lockFor(requestID string) (*sync.Mutex, error) {
	s.mu.RLock()
	lock := s.locks[requestID]
	s.mu.RUnlock()
	if lock == nil {
		return nil, fmt.Errorf("unknown state %q", requestID)
	}
	return lock, nil
}
