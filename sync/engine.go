package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Chirlanio/mercury-sync/metrics"
)

// Engine drives chunked, resumable synchronization of the ERP into the local
// store. It is single-writer: one live run per sync type, one chunk at a
// time, driven by repeated ProcessChunk calls from an external loop.
type Engine struct {
	runs  RunStore
	src   Source
	store Store
}

func NewEngine(runs RunStore, src Source, store Store) *Engine {
	return &Engine{runs: runs, src: src, store: store}
}

// ChunkResult reports one ProcessChunk invocation. HasMore uses the
// full-page heuristic: a chunk that filled its page probably has successors.
type ChunkResult struct {
	Progress
	HasMore   bool
	Cancelled bool
}

// Start opens a run and moves it to running. It fails when a run of the same
// type is already live, so two drivers cannot race the same cursor.
func (e *Engine) Start(t Type, startedBy string) (*Run, error) {
	run, err := e.runs.CreateRun(t, startedBy)
	if err != nil {
		return nil, fmt.Errorf("error creating %s run: %w", t, err)
	}
	if err := e.runs.MarkRunning(run.ID); err != nil {
		return nil, fmt.Errorf("error starting %s run: %w", t, err)
	}
	run.Status = StatusRunning
	return run, nil
}

// Finish sets the run completed. Cancelled runs are already terminal by the
// time the engine observes them and must not be finished again.
func (e *Engine) Finish(run *Run) error {
	if err := e.runs.FinishRun(run.ID, StatusCompleted); err != nil {
		return fmt.Errorf("error completing run %d: %w", run.ID, err)
	}
	run.Status = StatusCompleted
	return nil
}

// ProcessChunk advances the product sync by one page: it pulls up to pageSize
// distinct references past the cursor, fetches their rows, groups them
// client-side and merges group by group. The cursor moves past every
// reference it iterates, errored ones included, so one bad record can never
// stall the run. Group errors are counted and logged on the run; only source
// or run-store unavailability aborts.
func (e *Engine) ProcessChunk(ctx context.Context, run *Run, pageSize int) (ChunkResult, error) {
	var res ChunkResult
	start := time.Now()
	st, err := e.runs.RunStatus(run.ID)
	if err != nil {
		return res, fmt.Errorf("error reading run %d status: %w", run.ID, err)
	}
	if st == StatusCancelled {
		res.Cancelled = true
		return res, nil
	}
	refs, err := e.src.NextReferences(ctx, run.LastReference, pageSize)
	if err != nil {
		return res, fmt.Errorf("error fetching references after %q: %w", run.LastReference, err)
	}
	if len(refs) == 0 {
		return res, nil
	}
	rows, err := e.src.ProductRows(ctx, refs)
	if err != nil {
		return res, fmt.Errorf("error fetching rows for %d references: %w", len(refs), err)
	}
	groups := make(map[string][]ProductRow, len(refs))
	for _, r := range rows {
		groups[r.Reference] = append(groups[r.Reference], r)
	}
	res.Total = len(refs)
	cursor := run.LastReference
	for _, ref := range refs {
		st, err := e.runs.RunStatus(run.ID)
		if err != nil {
			return res, fmt.Errorf("error reading run %d status: %w", run.ID, err)
		}
		if st == StatusCancelled {
			res.Cancelled = true
			break
		}
		g := groups[ref]
		if len(g) == 0 {
			cursor = ref
			continue
		}
		a, err := e.applyGroup(ref, g)
		if err != nil {
			res.Errors++
			res.ErrorDetails = append(res.ErrorDetails, fmt.Sprintf("After ref '%s': %v", cursor, err))
			slog.Warn("error processing product group", "reference", ref, "error", err)
		} else {
			res.add(a)
		}
		cursor = ref
	}
	res.LastReference = cursor
	res.HasMore = !res.Cancelled && len(refs) == pageSize
	if err := e.runs.RecordChunk(run.ID, res.Progress); err != nil {
		return res, fmt.Errorf("error recording chunk for run %d: %w", run.ID, err)
	}
	run.apply(res.Progress)
	metrics.ObserveChunk(string(run.Type), time.Since(start))
	metrics.CountRecords(string(run.Type), res.Inserted, res.Updated, res.Skipped, res.Errors)
	return res, nil
}

// apply mirrors a persisted chunk delta onto the in-memory run.
func (r *Run) apply(p Progress) {
	r.TotalRecords += p.Total
	r.ProcessedRecords += p.Processed
	r.InsertedRecords += p.Inserted
	r.UpdatedRecords += p.Updated
	r.SkippedRecords += p.Skipped
	r.ErrorCount += p.Errors
	r.ErrorDetails = append(r.ErrorDetails, p.ErrorDetails...)
	if p.LastReference != "" {
		r.LastReference = p.LastReference
	}
}
