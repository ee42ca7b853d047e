// Package registry keeps the flat name→action catalog and interprets
// precondition tokens against the current state.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// PreconditionFunc decides whether an opaque capability token holds for the
// current state.
type PreconditionFunc func(st *state.AgentState) bool

// Registry implements the action catalog.
type Registry struct {
	mu       sync.RWMutex
	actions  map[string]ports.Action
	checkers map[string]PreconditionFunc
	logger   logging.Logger
}

// NewRegistry creates an empty registry with the built-in precondition
// checkers installed.
func NewRegistry(logger logging.Logger) *Registry {
	r := &Registry{
		actions:  make(map[string]ports.Action),
		checkers: make(map[string]PreconditionFunc),
		logger:   logging.OrNop(logger),
	}
	r.RegisterPrecondition("nodes_resolved", func(st *state.AgentState) bool {
		return len(st.Draft.Nodes) > 0
	})
	r.RegisterPrecondition("facts_loaded", func(st *state.AgentState) bool {
		return len(st.Memory.SemanticFacts.POIs) > 0
	})
	r.RegisterPrecondition("matrix_built", func(st *state.AgentState) bool {
		return st.Compute.TimeMatrixRobust != nil
	})
	r.RegisterPrecondition("timeline_present", func(st *state.AgentState) bool {
		return len(st.Result.Timeline) > 0
	})
	return r
}

// Register adds an action; a duplicate name replaces the previous entry.
func (r *Registry) Register(action ports.Action) error {
	if action == nil {
		return fmt.Errorf("nil action")
	}
	name := action.Definition().Name
	if name == "" {
		return fmt.Errorf("action has empty name")
	}
	r.mu.Lock()
	r.actions[name] = action
	r.mu.Unlock()
	return nil
}

// RegisterPrecondition installs the interpretation of one capability token.
func (r *Registry) RegisterPrecondition(token string, fn PreconditionFunc) {
	r.mu.Lock()
	r.checkers[token] = fn
	r.mu.Unlock()
}

// Get returns the action by name.
func (r *Registry) Get(name string) (ports.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	return action, ok
}

// List returns the catalog sorted by name.
func (r *Registry) List() []ports.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]ports.Action, 0, len(names))
	for _, name := range names {
		out = append(out, r.actions[name])
	}
	return out
}

// CheckPreconditions reports whether every declared precondition token of the
// named action holds for st. A missing action fails closed; a token without a
// registered checker passes (its semantics belong to the action provider).
// This never panics: a failed check logs and lets the Plan step pick
// something else.
func (r *Registry) CheckPreconditions(name string, st *state.AgentState) bool {
	action, ok := r.Get(name)
	if !ok {
		r.logger.Warn("Precondition check for unknown action %q", name)
		return false
	}
	for _, token := range action.Metadata().Preconditions {
		r.mu.RLock()
		checker := r.checkers[token]
		r.mu.RUnlock()
		if checker == nil {
			continue
		}
		if !checker(st) {
			r.logger.Debug("Precondition %q failed for action %q", token, name)
			return false
		}
	}
	return true
}
