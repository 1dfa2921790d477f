// Package ratelimit implements the Rate Limiter (spec §4.8): per
// (userId, plan, triggerType, isAsync) admission control for execution
// starts. It counts in fixed windows of WindowSeconds (Redis), or with a
// token bucket when Redis is unavailable; there is no sliding window. It is
// supplemented with the teacher's per-workflow complexity
// tier so a handful of heavy agent-laden workflows cannot starve simple
// ones sharing the same plan quota.
package ratelimit

import "sim.studio/executor/internal/engine"

// Tier represents the rate-limit tier derived from a workflow's block
// composition. Grounded on the teacher's ratelimit.WorkflowTier, generalized
// from the teacher's raw map[string]interface{} node scan to a typed walk
// over engine.SerializedWorkflow.
type Tier string

const (
	TierSimple   Tier = "simple"   // no agent blocks
	TierStandard Tier = "standard" // 1-2 agent blocks
	TierHeavy    Tier = "heavy"    // 3+ agent blocks
)

func (t Tier) String() string { return string(t) }

// Profile is the result of inspecting a workflow's complexity.
type Profile struct {
	Tier          Tier
	AgentCount    int
	HasAgentNodes bool
	TotalBlocks   int
}

// Inspect walks a serialized workflow's blocks and derives its rate-limit
// tier from its agent-block count, matching the teacher's
// InspectWorkflow/determineTier thresholds.
func Inspect(wf *engine.SerializedWorkflow) Profile {
	p := Profile{TotalBlocks: len(wf.BlocksByID)}
	for _, b := range wf.BlocksByID {
		if b.Kind == engine.KindAgent {
			p.AgentCount++
		}
	}
	p.HasAgentNodes = p.AgentCount > 0
	p.Tier = tierFor(p.AgentCount)
	return p
}

func tierFor(agentCount int) Tier {
	switch {
	case agentCount == 0:
		return TierSimple
	case agentCount <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}
