package fastpath

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub002/internal/actions"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/router"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

func seededState(t *testing.T, store *state.Store) *state.AgentState {
	t.Helper()
	st := store.Create("", state.Options{})
	st, err := store.Update(st.RequestID, func(s *state.AgentState) {
		s.Draft.Nodes = actions.LookupPOIs("京都", 5)
		s.Result.Timeline = []state.TimelineEvent{
			{Type: state.EventNode, NodeID: "poi_kiyomizu", Day: 1, Start: "10:20", End: "11:50"},
			{Type: state.EventNode, NodeID: "poi_kinkaku", Day: 1, Start: "14:00", End: "15:00"},
		}
	})
	require.NoError(t, err)
	return st
}

func TestDeleteRemovesNodeAndTimelineSlots(t *testing.T) {
	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, nil, nil)

	result, err := exec.Execute(context.Background(), router.RouteSystem1API, "删除清水寺", st)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "已从行程中删除「清水寺」。", result.AnswerText)

	after := store.Get(st.RequestID)
	for _, n := range after.Draft.Nodes {
		assert.NotEqual(t, "poi_kiyomizu", n.ID)
	}
	for _, ev := range after.Result.Timeline {
		assert.NotEqual(t, "poi_kiyomizu", ev.NodeID)
	}
	require.Len(t, after.Draft.Edits, 1)
	assert.Equal(t, "delete", after.Draft.Edits[0].Op)
	assert.Equal(t, "poi_kiyomizu", after.Draft.Edits[0].NodeID)
}

func TestAddIsIdempotentOnDraft(t *testing.T) {
	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, nil, nil)

	before := len(store.Get(st.RequestID).Draft.Nodes)

	result, err := exec.Execute(context.Background(), router.RouteSystem1API, "加上奈良公园", st)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, before+1, len(store.Get(st.RequestID).Draft.Nodes))

	// Adding an already-present node records the edit but not a duplicate.
	_, err = exec.Execute(context.Background(), router.RouteSystem1API, "加上奈良公园", st)
	require.NoError(t, err)
	assert.Equal(t, before+1, len(store.Get(st.RequestID).Draft.Nodes))
}

func TestUnknownTargetFails(t *testing.T) {
	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, nil, nil)

	_, err := exec.Execute(context.Background(), router.RouteSystem1API, "删除月球基地", st)
	assert.Error(t, err)
}

func TestMissingVerbFails(t *testing.T) {
	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, nil, nil)

	_, err := exec.Execute(context.Background(), router.RouteSystem1API, "清水寺不错", st)
	assert.Error(t, err)
}

func TestEmptyMessageFails(t *testing.T) {
	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, nil, nil)

	for _, msg := range []string{"", "  ", "unknown"} {
		_, err := exec.Execute(context.Background(), router.RouteSystem1API, msg, st)
		assert.Error(t, err, "message %q", msg)
	}
}

func TestFactualAnswerFromCatalogFallback(t *testing.T) {
	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, nil, nil)

	result, err := exec.Execute(context.Background(), router.RouteSystem1RAG, "清水寺的营业时间是什么", st)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.AnswerText, "清水寺")
	assert.Contains(t, result.AnswerText, "06:00-18:00")
	assert.Equal(t, "poi_kiyomizu", result.Payload["poi_id"])
}

func TestFactualAnswerFromIndex(t *testing.T) {
	ctx := context.Background()
	index, err := NewIndex(ctx, actions.CatalogDocuments())
	require.NoError(t, err)

	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, index, nil)

	result, err := exec.Execute(ctx, router.RouteSystem1RAG, "清水寺的门票多少钱", st)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.AnswerText)
	assert.NotEmpty(t, result.Payload["poi_id"])
}

func TestFactualUnknownPOIFails(t *testing.T) {
	store := state.NewStore(nil)
	st := seededState(t, store)
	exec := New(store, nil, nil)

	_, err := exec.Execute(context.Background(), router.RouteSystem1RAG, "月球基地的营业时间", st)
	assert.Error(t, err)
}

func TestIndexSearchRanksExactNameHighly(t *testing.T) {
	ctx := context.Background()
	index, err := NewIndex(ctx, actions.CatalogDocuments())
	require.NoError(t, err)

	hits, err := index.Search(ctx, "金阁寺 营业时间", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	found := false
	for _, hit := range hits {
		if hit.ID == "poi_kinkaku" {
			found = true
		}
	}
	assert.True(t, found, "hits: %+v", hits)
}

func TestIndexSearchCapsTopK(t *testing.T) {
	ctx := context.Background()
	index, err := NewIndex(ctx, map[string]string{
		"a": "清水寺 早上开门",
		"b": "金阁寺 下午关门",
	})
	require.NoError(t, err)

	hits, err := index.Search(ctx, "开门时间", 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 2)
}
