package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// DefaultListLimit is the page size used when ListRuns is given no limit.
const DefaultListLimit = 50

// StatusFromEvents derives a run's status from the last terminal event of
// its log. A log without one, such as a run still in flight or one whose
// final line was truncated, is unknown.
func StatusFromEvents(events []*core.Event) core.RunStatus {
	for i := len(events) - 1; i >= 0; i-- {
		if status, ok := events[i].Type.TerminalStatus(); ok {
			return status
		}
	}
	return core.RunStatusUnknown
}

// GetRunStatus returns the derived status of a run.
func (o *Orchestrator) GetRunStatus(ctx context.Context, runID string) (core.RunStatus, error) {
	events, err := o.Runs.Events(ctx, runID)
	if err != nil {
		return core.RunStatusUnknown, err
	}
	return StatusFromEvents(events), nil
}

// GetRunEvents returns a run's event log in append order.
func (o *Orchestrator) GetRunEvents(ctx context.Context, runID string) ([]*core.Event, error) {
	return o.Runs.Events(ctx, runID)
}

// GetArtifact returns the raw JSON of a run artifact.
func (o *Orchestrator) GetArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	return o.Runs.LoadArtifact(ctx, runID, name)
}

// ListRuns returns one page of runs, newest first, with the number of runs
// matching status. An empty status matches every run.
func (o *Orchestrator) ListRuns(ctx context.Context, limit, offset int, status core.RunStatus) ([]RunSummary, int, error) {
	if limit < 0 || offset < 0 {
		return nil, 0, fmt.Errorf("%w: limit and offset must not be negative", storage.ErrInvalidQuery)
	}
	if limit == 0 {
		limit = DefaultListLimit
	}
	infos, err := o.Runs.ListRuns(ctx)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]RunSummary, 0, len(infos))
	for _, info := range infos {
		runStatus, err := o.GetRunStatus(ctx, info.RunID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between listing and reading.
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if status != "" && runStatus != status {
			continue
		}
		matched = append(matched, RunSummary{
			RunID:     info.RunID,
			Status:    runStatus,
			CreatedAt: info.CreatedAt,
		})
	}

	total := len(matched)
	if offset >= total {
		return []RunSummary{}, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

// DeleteRun removes a run with its events and artifacts.
func (o *Orchestrator) DeleteRun(ctx context.Context, runID string) error {
	if err := o.Runs.DeleteRun(ctx, runID); err != nil {
		return err
	}
	o.logger.Info("run deleted", "run_id", runID)
	return nil
}
