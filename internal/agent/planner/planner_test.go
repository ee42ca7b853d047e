package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/registry"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
	"github.com/xudanli/tripnaraht-sub002/internal/llm"
)

type catalogAction struct{ name string }

func (a catalogAction) Execute(_ context.Context, _ map[string]any, _ *state.AgentState) (map[string]any, error) {
	return nil, nil
}
func (a catalogAction) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{Name: a.name, Description: "test action"}
}
func (a catalogAction) Metadata() ports.ActionMetadata { return ports.ActionMetadata{} }

func newTestRegistry(t *testing.T, names ...string) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(nil)
	for _, name := range names {
		require.NoError(t, reg.Register(catalogAction{name: name}))
	}
	return reg
}

func TestSelectActionWellFormed(t *testing.T) {
	mock := llm.NewMockClient("mock").Queue(
		`{"action_name":"places.resolve_entities","input":{"query":"东京"},"reasoning":"no nodes yet","confidence":0.8,"should_continue":true}`,
	)
	p := New(mock, newTestRegistry(t, "places.resolve_entities"), nil)

	sel := p.SelectAction(context.Background(), &state.AgentState{UserInput: "规划东京行程"}, nil)

	require.NotNil(t, sel)
	assert.Equal(t, "places.resolve_entities", sel.Name)
	assert.Equal(t, "东京", sel.Input["query"])
	assert.Equal(t, 0.8, sel.Confidence)
}

func TestSelectActionRepairsSloppyJSON(t *testing.T) {
	// Trailing comma and unquoted key, the kind of output models produce.
	mock := llm.NewMockClient("mock").Queue(
		`{action_name: "places.resolve_entities", "input": {}, "should_continue": true,}`,
	)
	p := New(mock, newTestRegistry(t, "places.resolve_entities"), nil)

	sel := p.SelectAction(context.Background(), &state.AgentState{}, nil)
	require.NotNil(t, sel)
	assert.Equal(t, "places.resolve_entities", sel.Name)
	assert.NotNil(t, sel.Input)
}

func TestSelectActionUnparseableYieldsNil(t *testing.T) {
	mock := llm.NewMockClient("mock").Queue("I think we should resolve entities first")
	p := New(mock, newTestRegistry(t, "places.resolve_entities"), nil)
	assert.Nil(t, p.SelectAction(context.Background(), &state.AgentState{}, nil))
}

func TestSelectActionUnknownActionYieldsNil(t *testing.T) {
	mock := llm.NewMockClient("mock").Queue(
		`{"action_name":"weather.forecast","input":{},"should_continue":true}`,
	)
	p := New(mock, newTestRegistry(t, "places.resolve_entities"), nil)
	assert.Nil(t, p.SelectAction(context.Background(), &state.AgentState{}, nil))
}

func TestSelectActionBlockedActionYieldsNil(t *testing.T) {
	mock := llm.NewMockClient("mock").Queue(
		`{"action_name":"places.resolve_entities","input":{},"should_continue":true}`,
	)
	p := New(mock, newTestRegistry(t, "places.resolve_entities"), nil)

	blocked := map[string]bool{"places.resolve_entities": true}
	assert.Nil(t, p.SelectAction(context.Background(), &state.AgentState{}, blocked))
}

func TestSelectActionStopSuggestionYieldsNil(t *testing.T) {
	mock := llm.NewMockClient("mock").Queue(
		`{"action_name":"","input":{},"should_continue":false}`,
	)
	p := New(mock, newTestRegistry(t, "places.resolve_entities"), nil)
	assert.Nil(t, p.SelectAction(context.Background(), &state.AgentState{}, nil))
}

func TestSelectActionClientErrorYieldsNil(t *testing.T) {
	mock := llm.NewMockClient("mock").QueueError(errors.New("timeout"))
	p := New(mock, newTestRegistry(t, "places.resolve_entities"), nil)
	assert.Nil(t, p.SelectAction(context.Background(), &state.AgentState{}, nil))
}

func TestNilPlannerIsSafe(t *testing.T) {
	var p *Planner
	assert.Nil(t, p.SelectAction(context.Background(), &state.AgentState{}, nil))
}

func TestPromptListsCatalog(t *testing.T) {
	reg := newTestRegistry(t, "places.resolve_entities", "transport.build_time_matrix")
	p := New(llm.NewMockClient("mock"), reg, nil)

	prompt := p.buildPrompt(&state.AgentState{UserInput: "规划东京行程"})
	assert.Contains(t, prompt, "places.resolve_entities")
	assert.Contains(t, prompt, "transport.build_time_matrix")
	assert.Contains(t, prompt, "规划东京行程")
}
