package sync

import (
	"context"
	"fmt"
)

// SyncPrices is the price-only bulk pass: one full read of the ERP price
// list, applied by product reference. No cursor — the price table is one row
// per reference — but the locked-record veto still holds.
func (e *Engine) SyncPrices(ctx context.Context, run *Run) error {
	rows, err := e.src.PriceRows(ctx)
	if err != nil {
		return fmt.Errorf("error fetching price list: %w", err)
	}
	var p Progress
	p.Total = len(rows)
	for _, row := range rows {
		st, err := e.runs.RunStatus(run.ID)
		if err != nil {
			return fmt.Errorf("error reading run %d status: %w", run.ID, err)
		}
		if st == StatusCancelled {
			break
		}
		prod, err := e.store.ProductByReference(row.Reference)
		if err != nil {
			p.Errors++
			p.ErrorDetails = append(p.ErrorDetails, fmt.Sprintf("After ref '%s': %v", row.Reference, err))
			continue
		}
		if prod == nil || prod.SyncLocked {
			p.add(actionSkipped)
			continue
		}
		if err := e.store.UpdatePrice(prod.ID, row.Price); err != nil {
			p.Errors++
			p.ErrorDetails = append(p.ErrorDetails, fmt.Sprintf("After ref '%s': %v", row.Reference, err))
			continue
		}
		p.add(actionUpdated)
	}
	if err := e.runs.RecordChunk(run.ID, p); err != nil {
		return fmt.Errorf("error recording price progress: %w", err)
	}
	run.apply(p)
	return nil
}
