package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

type stubAction struct {
	name          string
	preconditions []string
}

func (a stubAction) Execute(_ context.Context, _ map[string]any, _ *state.AgentState) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func (a stubAction) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{Name: a.name}
}

func (a stubAction) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{Preconditions: a.preconditions}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubAction{name: "places.resolve_entities"}))

	action, ok := r.Get("places.resolve_entities")
	assert.True(t, ok)
	assert.Equal(t, "places.resolve_entities", action.Definition().Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsBadActions(t *testing.T) {
	r := NewRegistry(nil)
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(stubAction{name: ""}))
}

func TestListIsSortedByName(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubAction{name: "transport.build_time_matrix"}))
	require.NoError(t, r.Register(stubAction{name: "places.resolve_entities"}))
	require.NoError(t, r.Register(stubAction{name: "policy.validate_feasibility"}))

	var names []string
	for _, a := range r.List() {
		names = append(names, a.Definition().Name)
	}
	assert.Equal(t, []string{
		"places.resolve_entities",
		"policy.validate_feasibility",
		"transport.build_time_matrix",
	}, names)
}

func TestBuiltinPreconditions(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubAction{
		name:          "transport.build_time_matrix",
		preconditions: []string{"nodes_resolved"},
	}))

	st := &state.AgentState{}
	assert.False(t, r.CheckPreconditions("transport.build_time_matrix", st))

	st.Draft.Nodes = []state.Node{{ID: "poi_kiyomizu"}}
	assert.True(t, r.CheckPreconditions("transport.build_time_matrix", st))
}

func TestTimelinePresentPrecondition(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubAction{
		name:          "policy.validate_feasibility",
		preconditions: []string{"timeline_present"},
	}))

	st := &state.AgentState{}
	assert.False(t, r.CheckPreconditions("policy.validate_feasibility", st))

	st.Result.Timeline = []state.TimelineEvent{{Type: "NODE"}}
	assert.True(t, r.CheckPreconditions("policy.validate_feasibility", st))
}

func TestUnknownActionFailsClosed(t *testing.T) {
	r := NewRegistry(nil)
	assert.False(t, r.CheckPreconditions("nope", &state.AgentState{}))
}

func TestUnknownTokenPasses(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubAction{
		name:          "custom.thing",
		preconditions: []string{"vendor_specific_token"},
	}))
	assert.True(t, r.CheckPreconditions("custom.thing", &state.AgentState{}))
}

func TestRegisterPreconditionOverride(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(stubAction{
		name:          "custom.thing",
		preconditions: []string{"always_no"},
	}))
	r.RegisterPrecondition("always_no", func(*state.AgentState) bool { return false })
	assert.False(t, r.CheckPreconditions("custom.thing", &state.AgentState{}))
}
