package engine

import "encoding/json"

func unmarshalWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// MarshalJSON round-trips a SerializedWorkflow back into the storage shape,
// satisfying the round-trip invariant in spec §8.6: serializing then
// deserializing yields identical block/edge sets and subflow membership.
func (w *SerializedWorkflow) MarshalJSON() ([]byte, error) {
	blocks := make(map[string]*Block, len(w.BlocksByID))
	for id, b := range w.BlocksByID {
		blocks[id] = b
	}
	return json.Marshal(&Workflow{
		Version:     w.Version,
		Blocks:      blocks,
		Connections: w.Connections,
		Loops:       w.Loops,
		Parallels:   w.Parallels,
	})
}
