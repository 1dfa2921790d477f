package engine

import (
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"sim.studio/executor/internal/engine/errs"
)

// validBlockKinds mirrors the teacher's validExecutableTypes table: the
// closed set the Serializer accepts without raising UnknownBlockKind.
var validBlockKinds = map[BlockKind]bool{
	KindStarter: true, KindAgent: true, KindAPI: true, KindFunction: true,
	KindRouter: true, KindCondition: true, KindEvaluator: true, KindResponse: true,
	KindLoop: true, KindParallel: true, KindWorkflow: true,
}

// Defaulter produces a concrete default value for a sub-block parameter
// that the stored workflow left null, given the block's other resolved
// params. Registered per block id by the caller that owns block-specific
// defaulting knowledge (e.g. a tool-specific config collaborator).
type Defaulter func(otherParams map[string]any) any

// Serializer transforms the editor/storage representation of a workflow
// into the immutable SerializedWorkflow execution graph. It is the only
// component that runs default-value computation; everything else operates
// on the graph it returns.
type Serializer struct {
	defaulters map[string]Defaulter
}

func NewSerializer() *Serializer {
	return &Serializer{defaulters: make(map[string]Defaulter)}
}

// RegisterDefaulter wires a defaulter for a specific block id.
func (s *Serializer) RegisterDefaulter(blockID string, d Defaulter) {
	s.defaulters[blockID] = d
}

// Serialize converts a Workflow into a SerializedWorkflow, applying
// defaulting, validating invariants, and building adjacency indexes.
func (s *Serializer) Serialize(wf *Workflow) (*SerializedWorkflow, error) {
	blocks := make([]*Block, 0, len(wf.Blocks))
	for id, b := range wf.Blocks {
		if !validBlockKinds[b.Kind] {
			return nil, errs.Newf(errs.UnknownBlockKind, id, "unknown block kind %q", b.Kind)
		}
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ID < blocks[j].ID })

	byID := make(map[string]*Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}

	// dangling edges: both endpoints must exist.
	for _, c := range wf.Connections {
		if _, ok := byID[c.Source]; !ok {
			return nil, errs.Newf(errs.DanglingEdge, c.Source, "connection references unknown source block %q", c.Source)
		}
		if _, ok := byID[c.Target]; !ok {
			return nil, errs.Newf(errs.DanglingEdge, c.Target, "connection references unknown target block %q", c.Target)
		}
	}

	// exactly one starter block with no incoming edges.
	hasIncoming := make(map[string]bool)
	for _, c := range wf.Connections {
		hasIncoming[c.Target] = true
	}
	starterCount := 0
	for _, b := range blocks {
		if b.Kind == KindStarter {
			starterCount++
			if hasIncoming[b.ID] {
				return nil, errs.New(errs.MissingStarter, b.ID, "starter block must not have incoming edges")
			}
		}
	}
	if starterCount != 1 {
		return nil, errs.Newf(errs.MissingStarter, "", "expected exactly one starter block, found %d", starterCount)
	}

	// duplicate subflow membership: a block id may belong to at most one
	// loop/parallel subflow.
	owner := make(map[string]string)
	for sid, def := range wf.Loops {
		for _, n := range def.Nodes {
			if _, ok := byID[n]; !ok {
				return nil, errs.Newf(errs.DanglingEdge, n, "loop %q references unknown block %q", sid, n)
			}
			if prev, ok := owner[n]; ok {
				return nil, errs.Newf(errs.DuplicateSubflowMember, n, "block %q enclosed by both %q and %q", n, prev, sid)
			}
			owner[n] = sid
		}
	}
	for sid, def := range wf.Parallels {
		for _, n := range def.Nodes {
			if _, ok := byID[n]; !ok {
				return nil, errs.Newf(errs.DanglingEdge, n, "parallel %q references unknown block %q", sid, n)
			}
			if prev, ok := owner[n]; ok {
				return nil, errs.Newf(errs.DuplicateSubflowMember, n, "block %q enclosed by both %q and %q", n, prev, sid)
			}
			owner[n] = sid
		}
	}

	// defaulting: for each block, invoke a registered defaulter wherever
	// a param is explicitly nil.
	for _, b := range blocks {
		def, ok := s.defaulters[b.ID]
		if !ok || b.Config.Params == nil {
			continue
		}
		for k, v := range b.Config.Params {
			if v != nil {
				continue
			}
			others := make(map[string]any, len(b.Config.Params)-1)
			for ok2, ov := range b.Config.Params {
				if ok2 != k {
					others[ok2] = ov
				}
			}
			b.Config.Params[k] = def(others)
		}
	}

	sw := &SerializedWorkflow{
		Version:     wf.Version,
		Blocks:      blocks,
		BlocksByID:  byID,
		Connections: append([]Connection(nil), wf.Connections...),
		Loops:       wf.Loops,
		Parallels:   wf.Parallels,
	}
	if sw.Loops == nil {
		sw.Loops = map[string]*LoopDef{}
	}
	if sw.Parallels == nil {
		sw.Parallels = map[string]*ParallelDef{}
	}
	sw.buildAdjacency()
	return sw, nil
}

// ApplyPatches applies an ordered RFC6902 JSON-Patch chain to a base
// workflow (serialized as JSON) and re-serializes the result, generalizing
// the teacher's run-patch materialization step: a cumulative log of
// structural edits applied to a base workflow before recompiling to the
// execution graph.
func (s *Serializer) ApplyPatches(baseJSON []byte, patches ...[]byte) (*SerializedWorkflow, error) {
	doc := baseJSON
	for _, p := range patches {
		patch, err := jsonpatch.DecodePatch(p)
		if err != nil {
			return nil, fmt.Errorf("decode patch: %w", err)
		}
		doc, err = patch.Apply(doc)
		if err != nil {
			return nil, fmt.Errorf("apply patch: %w", err)
		}
	}
	wf, err := unmarshalWorkflow(doc)
	if err != nil {
		return nil, err
	}
	return s.Serialize(wf)
}
