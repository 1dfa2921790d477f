package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"sim.studio/executor/internal/engine"
)

// TraceSpan is one span in the run's trace, forwarded alongside execution
// logs. Shape left intentionally open (a name, a time range, and free-form
// attributes) since spec.md names "traceSpans" as a saveExecutionLogs
// parameter without specifying its fields.
type TraceSpan struct {
	Name       string
	StartMs    int64
	EndMs      int64
	Attributes map[string]any
}

// Costs aggregates the provider spend incurred by a run, broken down per
// block so a heavy agent-laden workflow's cost is attributable.
type Costs struct {
	TotalUSD    float64
	PerBlockUSD map[string]float64
}

// SaveExecutionLogs appends one run's block logs, trace spans, and costs,
// per spec §6: "append-only; idempotent by executionId." Idempotency is
// enforced with ON CONFLICT DO NOTHING keyed on (execution_id, block_id)
// for the per-block rows and on execution_id for the summary row, so a
// re-invoked save (e.g. after a timeout where the caller couldn't tell
// whether the first attempt landed) never double-counts logs or cost.
func (s *Store) SaveExecutionLogs(ctx context.Context, workflowID, executionID string, logs []engine.LogEntry, spans []TraceSpan, costs *Costs) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin execution log save: %w", err)
	}
	defer tx.Rollback(ctx)

	const logQuery = `
		INSERT INTO execution_log
			(execution_id, workflow_id, block_id, block_name, kind, start_time, end_time, success, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (execution_id, block_id) DO NOTHING
	`
	for _, entry := range logs {
		var outputJSON []byte
		if entry.Output != nil {
			outputJSON, err = json.Marshal(entry.Output.AsMap())
			if err != nil {
				return fmt.Errorf("encode output for block %q: %w", entry.BlockID, err)
			}
		}
		var errMsg *string
		if entry.Err != nil {
			msg := entry.Err.Error()
			errMsg = &msg
		}
		_, err = tx.Exec(ctx, logQuery,
			executionID, workflowID, entry.BlockID, entry.BlockName, string(entry.Kind),
			entry.StartTime, entry.EndTime, entry.Success, outputJSON, errMsg,
		)
		if err != nil {
			return fmt.Errorf("insert execution log for block %q: %w", entry.BlockID, err)
		}
	}

	spansJSON, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("encode trace spans: %w", err)
	}
	costsJSON, err := json.Marshal(costs)
	if err != nil {
		return fmt.Errorf("encode costs: %w", err)
	}

	const summaryQuery = `
		INSERT INTO execution_summary (execution_id, workflow_id, trace_spans, costs)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (execution_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, summaryQuery, executionID, workflowID, spansJSON, costsJSON); err != nil {
		return fmt.Errorf("insert execution summary: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit execution log save: %w", err)
	}

	s.log.Info("saved execution logs", "workflow_id", workflowID, "execution_id", executionID, "entries", len(logs))
	return nil
}
