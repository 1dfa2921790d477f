// Package streaming implements the Streaming Response Format Processor
// (spec §4.7): a pure, non-blocking transform on a byte stream that
// extracts selected fields (<blockId>_<fieldName>) from structured JSON
// accumulating on the wire.
package streaming

import (
	"encoding/json"
	"strings"
)

// Field is one selected-field token, e.g. "block1_username" decomposed
// into BlockID="block1", Name="username".
type Field struct {
	BlockID string
	Name    string
}

// ParseSelection parses selection tokens of shape "<blockId>_<fieldName>".
// The split is on the first underscore, matching how block ids (which
// never contain underscores themselves in this port) are generated.
func ParseSelection(tokens []string) []Field {
	fields := make([]Field, 0, len(tokens))
	for _, t := range tokens {
		idx := strings.Index(t, "_")
		if idx < 0 {
			continue
		}
		fields = append(fields, Field{BlockID: t[:idx], Name: t[idx+1:]})
	}
	return fields
}

// Process wraps a raw provider byte stream for blockID: it reads the stream
// to its end, then extracts the selected fields and emits them newline
// joined as one frame. If no selection applies to blockID, the input
// channel is returned untouched (spec: "original stream is returned
// untouched"). The returned channel is closed after input is closed and
// the frame, if any, is sent; Process takes no context and cannot be
// cancelled. It never blocks the producer: input is drained as it arrives.
func Process(input <-chan []byte, blockID string, selection []Field) <-chan []byte {
	var applicable []Field
	for _, f := range selection {
		if f.BlockID == blockID {
			applicable = append(applicable, f)
		}
	}
	if len(applicable) == 0 {
		return input
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		var buf strings.Builder
		for chunk := range input {
			buf.Write(chunk)
		}
		emitExtracted(out, buf.String(), applicable)
	}()
	return out
}

func (f Field) path() string { return f.Name }

// emitExtracted buffers until the accumulated bytes parse as JSON (the
// processor only ever sees the full accumulated payload here since the
// wrapped stream has already been drained), then extracts each selected
// field in order, JSON-stringifying non-string values, and writes a
// single newline-joined frame. Invalid JSON at EOF emits nothing (an
// empty stream), per spec.
func emitExtracted(out chan<- []byte, accumulated string, fields []Field) {
	trimmed := strings.TrimSpace(accumulated)
	if trimmed == "" {
		return
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := parsed[f.path()]
		if !ok {
			continue
		}
		lines = append(lines, stringify(v))
	}
	if len(lines) == 0 {
		return
	}
	out <- []byte(strings.Join(lines, "\n"))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
