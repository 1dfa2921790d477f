// Package engine implements the Sim Studio workflow execution core: the
// graph interpreter, its block handlers, path activation and routing,
// loop/parallel orchestration, variable resolution, and streaming
// response processing.
package engine

import "sort"

// BlockKind enumerates the closed set of block kinds the dispatcher knows
// how to route. Unknown kinds fail serialization with UnknownBlockKind.
type BlockKind string

const (
	KindStarter   BlockKind = "starter"
	KindAgent     BlockKind = "agent"
	KindAPI       BlockKind = "api"
	KindFunction  BlockKind = "function"
	KindRouter    BlockKind = "router"
	KindCondition BlockKind = "condition"
	KindEvaluator BlockKind = "evaluator"
	KindResponse  BlockKind = "response"
	KindLoop      BlockKind = "loop"
	KindParallel  BlockKind = "parallel"
	KindWorkflow  BlockKind = "workflow"
)

// LoopType enumerates loop iteration strategies.
type LoopType string

const (
	LoopFor     LoopType = "for"
	LoopForEach LoopType = "forEach"
	LoopWhile   LoopType = "while"
)

// ParallelType enumerates parallel fan-out strategies.
type ParallelType string

const (
	ParallelCount      ParallelType = "count"
	ParallelCollection ParallelType = "collection"
)

// TriggerType identifies the origin of a run.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerAPI      TriggerType = "api"
	TriggerWebhook  TriggerType = "webhook"
	TriggerSchedule TriggerType = "schedule"
	TriggerChat     TriggerType = "chat"
)

// BlockConfig holds the tool reference and parameter map for a block.
// Params may contain unresolved template references until the resolver
// runs immediately before dispatch.
type BlockConfig struct {
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Block is one node of the workflow graph.
type Block struct {
	ID       string            `json:"id"`
	Kind     BlockKind         `json:"kind"`
	Name     string            `json:"name"`
	Position any               `json:"position,omitempty"`
	Config   BlockConfig       `json:"config"`
	Inputs   map[string]string `json:"inputs,omitempty"`
	Outputs  map[string]string `json:"outputs,omitempty"`
	Enabled  bool              `json:"enabled"`
}

// Connection is an edge of the workflow graph. SourceHandle differentiates
// router/condition branch outputs and loop/parallel scaffolding; see the
// scaffold handle constants below.
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Scaffold handle prefixes/values recognized by the router.
const (
	HandleLoopStart     = "loop-start-source"
	HandleLoopEnd       = "loop-end-source"
	HandleParallelStart = "parallel-start-source"
	HandleParallelEnd   = "parallel-end-source"
	conditionPrefix     = "condition-"
)

// LoopDef describes a loop subflow.
type LoopDef struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Iterations   int      `json:"iterations"`
	LoopType     LoopType `json:"loopType"`
	ForEachItems any      `json:"forEachItems,omitempty"`
}

// ParallelDef describes a parallel subflow.
type ParallelDef struct {
	ID           string       `json:"id"`
	Nodes        []string     `json:"nodes"`
	ParallelType ParallelType `json:"parallelType"`
	Count        int          `json:"count,omitempty"`
	Distribution any          `json:"distribution,omitempty"`
}

// Workflow is the persisted, editor-facing representation: a loose mapping
// of block states plus an edge list and subflow definitions. The
// Serializer turns this into a SerializedWorkflow.
type Workflow struct {
	Version     string                 `json:"version"`
	Blocks      map[string]*Block      `json:"blocks"`
	Connections []Connection           `json:"connections"`
	Loops       map[string]*LoopDef    `json:"loops"`
	Parallels   map[string]*ParallelDef `json:"parallels"`
}

// SerializedWorkflow is the immutable execution graph produced by the
// Serializer: blocks sorted deterministically by id, edges carrying their
// handle annotations, and subflow node membership normalized.
type SerializedWorkflow struct {
	Version     string
	Blocks      []*Block
	BlocksByID  map[string]*Block
	Connections []Connection
	Loops       map[string]*LoopDef
	Parallels   map[string]*ParallelDef

	// outgoing/incoming adjacency, precomputed for the router.
	outgoing map[string][]Connection
	incoming map[string][]Connection
}

func (w *SerializedWorkflow) Outgoing(blockID string) []Connection { return w.outgoing[blockID] }
func (w *SerializedWorkflow) Incoming(blockID string) []Connection { return w.incoming[blockID] }

func (w *SerializedWorkflow) buildAdjacency() {
	w.outgoing = make(map[string][]Connection, len(w.Blocks))
	w.incoming = make(map[string][]Connection, len(w.Blocks))
	for _, c := range w.Connections {
		w.outgoing[c.Source] = append(w.outgoing[c.Source], c)
		w.incoming[c.Target] = append(w.incoming[c.Target], c)
	}
}

// SortedBlockIDs returns block ids in deterministic ascending order.
func (w *SerializedWorkflow) SortedBlockIDs() []string {
	ids := make([]string, 0, len(w.BlocksByID))
	for id := range w.BlocksByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SubflowOf reports the enclosing loop or parallel id for a block, if any.
func (w *SerializedWorkflow) SubflowOf(blockID string) (id string, isLoop bool, ok bool) {
	for sid, def := range w.Loops {
		for _, n := range def.Nodes {
			if n == blockID {
				return sid, true, true
			}
		}
	}
	for sid, def := range w.Parallels {
		for _, n := range def.Nodes {
			if n == blockID {
				return sid, false, true
			}
		}
	}
	return "", false, false
}
