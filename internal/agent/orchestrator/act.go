package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	actioncache "github.com/xudanli/tripnaraht-sub002/internal/agent/cache"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// actResult captures the outcome of one candidate in the Act phase.
type actResult struct {
	output   map[string]any
	err      error
	skipped  bool
	cacheHit bool
	cacheKey string
}

// act executes the group against a shared pre-iteration snapshot. Group
// members run concurrently; every member sees the same state and no member
// writes anything — merging happens afterwards, serially.
func (o *Orchestrator) act(ctx context.Context, snapshot *state.AgentState, group []Candidate) []actResult {
	results := make([]actResult, len(group))

	if len(group) == 1 {
		results[0] = o.runCandidate(ctx, snapshot, group[0])
		return results
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, cand := range group {
		i, cand := i, cand
		g.Go(func() error {
			results[i] = o.runCandidate(ctx, snapshot, cand)
			// Failures become observations, never group errors.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runCandidate checks preconditions, consults the cache, executes and caches.
// It never lets an action error or panic escape.
func (o *Orchestrator) runCandidate(ctx context.Context, snapshot *state.AgentState, cand Candidate) (res actResult) {
	action, ok := o.registry.Get(cand.Name)
	if !ok {
		o.logger.Warn("Planned action %q not registered, skipping", cand.Name)
		res.skipped = true
		return res
	}

	if !o.registry.CheckPreconditions(cand.Name, snapshot) {
		o.logger.Debug("Preconditions failed for %q, skipping", cand.Name)
		res.skipped = true
		return res
	}

	meta := action.Metadata()
	if meta.Cacheable {
		res.cacheKey = actioncache.GenerateCacheKey(cand.Name, cand.Input, meta.CacheKey)
		if cached, hit := o.cache.Get(res.cacheKey); hit {
			o.metrics.cacheHit()
			res.output = cached
			res.cacheHit = true
			return res
		}
	}

	res.output, res.err = o.executeSafely(ctx, action, cand, snapshot)
	if res.err != nil {
		o.metrics.actionFailed(cand.Name)
		return res
	}

	if meta.Cacheable && res.cacheKey != "" {
		o.cache.Set(res.cacheKey, res.output)
	}
	return res
}

func (o *Orchestrator) executeSafely(ctx context.Context, action ports.Action, cand Candidate, snapshot *state.AgentState) (output map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = nil
			err = fmt.Errorf("action %s panicked: %v", cand.Name, rec)
		}
	}()
	return action.Execute(ctx, cand.Input, snapshot)
}
