package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuducos/go-cnpj"
)

// LookupDescriptor declares how one small ERP reference table maps to a local
// lookup entity. The set of lookups is data, not code: adding a table means
// adding a descriptor, not a new case.
type LookupDescriptor struct {
	SourceTable string
	Entity      string // local table name
	CodeField   string
	NameField   string
	CNPJField   string              // optional; rows with an invalid CNPJ are skipped
	Sanitize    func(string) string // optional, applied to the name
}

// LookupTables is every reference table the lookups sync walks, in order.
// Stores come first so later syncs can resolve their codes.
var LookupTables = []LookupDescriptor{
	{SourceTable: "tb_loja", Entity: "stores", CodeField: "cd_loja", NameField: "nm_loja", CNPJField: "nr_cnpj", Sanitize: strings.TrimSpace},
	{SourceTable: "tb_marca", Entity: "brands", CodeField: "cd_marca", NameField: "nm_marca", Sanitize: strings.TrimSpace},
	{SourceTable: "tb_grupo", Entity: "product_groups", CodeField: "cd_grupo", NameField: "nm_grupo", Sanitize: strings.TrimSpace},
	{SourceTable: "tb_fornecedor", Entity: "suppliers", CodeField: "cd_fornec", NameField: "nm_fornec", Sanitize: strings.TrimSpace},
}

// SyncLookups runs one cursor-less full pass over every lookup table. The
// tables are small enough that the chunk machinery would be overhead.
func (e *Engine) SyncLookups(ctx context.Context, run *Run) error {
	for _, d := range LookupTables {
		st, err := e.runs.RunStatus(run.ID)
		if err != nil {
			return fmt.Errorf("error reading run %d status: %w", run.ID, err)
		}
		if st == StatusCancelled {
			return nil
		}
		var p Progress
		rows, err := e.src.LookupRows(ctx, d)
		if err != nil {
			return fmt.Errorf("error fetching %s: %w", d.SourceTable, err)
		}
		p.Total = len(rows)
		for _, row := range rows {
			row.Code = strings.TrimSpace(row.Code)
			if row.Code == "" {
				p.Processed++
				p.Skipped++
				continue
			}
			if d.Sanitize != nil {
				row.Name = d.Sanitize(row.Name)
			}
			if d.CNPJField != "" && !cnpj.IsValid(row.CNPJ) {
				slog.Warn("skipping lookup row with invalid CNPJ", "entity", d.Entity, "code", row.Code)
				p.Processed++
				p.Skipped++
				continue
			}
			inserted, err := e.store.UpsertLookup(d, row)
			if err != nil {
				p.Errors++
				p.ErrorDetails = append(p.ErrorDetails, fmt.Sprintf("After ref '%s': %v", row.Code, err))
				continue
			}
			if inserted {
				p.add(actionInserted)
			} else {
				p.add(actionUpdated)
			}
		}
		if err := e.runs.RecordChunk(run.ID, p); err != nil {
			return fmt.Errorf("error recording %s progress: %w", d.Entity, err)
		}
		run.apply(p)
		slog.Info("lookup table synchronized", "entity", d.Entity, "rows", p.Total, "errors", p.Errors)
	}
	return nil
}
