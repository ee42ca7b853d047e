// Package fastpath serves SYSTEM1 routes: single-shot CRUD edits against the
// draft and retrieval-based factual answers, no reasoning loop involved.
package fastpath

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xudanli/tripnaraht-sub002/internal/actions"
	"github.com/xudanli/tripnaraht-sub002/internal/agent"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/router"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// ragTopK is how many documents the retrieval branch considers.
const ragTopK = 3

// minRAGSimilarity filters out answers the index is not confident about.
const minRAGSimilarity = 0.1

// CRUD verb cues, checked in order.
var (
	deleteRe = regexp.MustCompile(`(?i)删除|移除|去掉|delete|remove`)
	addRe    = regexp.MustCompile(`(?i)添加|加上|加入|\badd\b`)
	moveRe   = regexp.MustCompile(`(?i)移到|挪到|调到|\bmove\b`)
)

// Executor is the default fast executor backed by the built-in catalog and a
// local vector index.
type Executor struct {
	store  *state.Store
	index  *Index
	logger logging.Logger
}

// New builds the fast executor. The index may be nil; the RAG branch then
// falls back to direct catalog lookup.
func New(store *state.Store, index *Index, logger logging.Logger) *Executor {
	return &Executor{
		store:  store,
		index:  index,
		logger: logging.OrNop(logger),
	}
}

// Execute serves one SYSTEM1 request.
func (e *Executor) Execute(ctx context.Context, route router.Route, message string, st *state.AgentState) (agent.FastResult, error) {
	message = strings.TrimSpace(message)
	if message == "" || strings.EqualFold(message, "unknown") {
		return agent.FastResult{}, fmt.Errorf("fastpath: empty or unrecognizable message")
	}

	if route == router.RouteSystem1RAG {
		return e.answerFactual(ctx, message)
	}
	return e.applyCRUD(ctx, message, st)
}

// applyCRUD parses a single edit verb and applies it to the draft.
func (e *Executor) applyCRUD(ctx context.Context, message string, st *state.AgentState) (agent.FastResult, error) {
	targets := actions.LookupPOIs(message, 5)
	if len(targets) == 0 {
		return agent.FastResult{}, fmt.Errorf("fastpath: no known POI in %q", message)
	}
	target := targets[0]

	var (
		op     string
		answer string
	)
	switch {
	case deleteRe.MatchString(message):
		op = "delete"
		answer = fmt.Sprintf("已从行程中删除「%s」。", target.Name)
	case addRe.MatchString(message):
		op = "add"
		answer = fmt.Sprintf("已将「%s」加入行程。", target.Name)
	case moveRe.MatchString(message):
		op = "move"
		answer = fmt.Sprintf("已调整「%s」在行程中的位置。", target.Name)
	default:
		return agent.FastResult{}, fmt.Errorf("fastpath: no CRUD verb in %q", message)
	}

	next, err := e.store.Update(st.RequestID, func(s *state.AgentState) {
		switch op {
		case "delete":
			s.Draft.Nodes = removeNode(s.Draft.Nodes, target.ID)
			s.Result.Timeline = removeTimelineNode(s.Result.Timeline, target.ID)
		case "add":
			if !containsNode(s.Draft.Nodes, target.ID) {
				s.Draft.Nodes = append(s.Draft.Nodes, target)
			}
		case "move":
			// A bare move request only records the intent; re-optimization
			// happens on the next planning request.
		}
		s.Draft.Edits = append(s.Draft.Edits, state.Edit{
			Op:     op,
			NodeID: target.ID,
			At:     time.Now(),
		})
	})
	if err != nil {
		return agent.FastResult{}, fmt.Errorf("fastpath: apply edit: %w", err)
	}

	e.logger.Debug("Fast CRUD %s on %s for %s", op, target.ID, st.RequestID)
	return agent.FastResult{
		Success:    true,
		AnswerText: answer,
		Payload: map[string]any{
			"op":      op,
			"node_id": target.ID,
			"nodes":   len(next.Draft.Nodes),
		},
	}, nil
}

// answerFactual retrieves the best matching fact sheet.
func (e *Executor) answerFactual(ctx context.Context, message string) (agent.FastResult, error) {
	if e.index != nil {
		hits, err := e.index.Search(ctx, message, ragTopK)
		if err != nil {
			e.logger.Warn("RAG index query failed, falling back to catalog: %v", err)
		} else if len(hits) > 0 && hits[0].Similarity >= minRAGSimilarity {
			return agent.FastResult{
				Success:    true,
				AnswerText: hits[0].Content,
				Payload: map[string]any{
					"poi_id":     hits[0].ID,
					"similarity": hits[0].Similarity,
				},
			}, nil
		}
	}

	// Direct catalog fallback.
	matches := actions.LookupPOIs(message, 1)
	if len(matches) == 0 {
		return agent.FastResult{}, fmt.Errorf("fastpath: no factual answer for %q", message)
	}
	facts := actions.FactsFor(matches[0].ID)
	if facts == nil {
		return agent.FastResult{}, fmt.Errorf("fastpath: no facts for %s", matches[0].ID)
	}
	answer := fmt.Sprintf("%s：营业时间 %v，门票 %v。", matches[0].Name, facts["opening_hours"], facts["price"])
	return agent.FastResult{
		Success:    true,
		AnswerText: answer,
		Payload:    map[string]any{"poi_id": matches[0].ID, "facts": facts},
	}, nil
}

func removeNode(nodes []state.Node, id string) []state.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

func removeTimelineNode(timeline []state.TimelineEvent, id string) []state.TimelineEvent {
	out := timeline[:0]
	for _, ev := range timeline {
		if ev.NodeID != id {
			out = append(out, ev)
		}
	}
	return out
}

func containsNode(nodes []state.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
