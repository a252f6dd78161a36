package dump

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"github.com/Chirlanio/mercury-sync/metrics"
	"github.com/Chirlanio/mercury-sync/sync"
)

const (
	// BatchSize is how many resolved sales go to the database per insert.
	BatchSize = 512

	// MaxStageWriters caps the parallel writers staging sales into the
	// temporary key-value storage.
	MaxStageWriters = 4
)

// Target selects which dump tables an import run covers.
type Target string

const (
	TargetEmployees Target = "employees"
	TargetContracts Target = "contracts"
	TargetSales     Target = "sales"
	TargetAll       Target = "all"
)

func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetEmployees, TargetContracts, TargetSales, TargetAll:
		return Target(s), nil
	}
	return "", fmt.Errorf("unknown import target %q (want employees, contracts, sales or all)", s)
}

// Counts tallies one table's import.
type Counts struct {
	Read       int
	Inserted   int
	Updated    int
	Skipped    int
	Mismatched int
}

// Summary maps dump table names to their import counts.
type Summary map[string]Counts

// database is the write side of the legacy import, implemented by
// db.PostgreSQL.
type database interface {
	UpsertEmployee(e Employee) (int64, error)
	// UpsertContract reports whether the contract was inserted (as
	// opposed to updated in place).
	UpsertContract(employeeID, storeID int64, c Contract) (bool, error)
	// InsertSales inserts a batch, ignoring legacy ids already present,
	// and reports how many rows were actually inserted.
	InsertSales(batch []SaleRecord) (int, error)
}

// SaleRecord is a sale with its identities resolved, ready for insertion.
type SaleRecord struct {
	LegacyID   int64           `json:"legacy_id"`
	EmployeeID int64           `json:"employee_id"`
	StoreID    int64           `json:"store_id"`
	SoldAt     time.Time       `json:"sold_at"`
	Amount     decimal.Decimal `json:"amount"`
}

// Importer pulls the Mercury dump tables into the local store. Employees and
// contracts are small and imported directly; sales are staged in a temporary
// Badger storage first, which dedupes repeated legacy ids and keeps memory
// flat no matter how large the dump is.
type Importer struct {
	db  database
	ids *sync.Identity

	DryRun       bool
	BatchSize    int
	StageWriters int
}

func NewImporter(db database, ids *sync.Identity) *Importer {
	return &Importer{db: db, ids: ids, BatchSize: BatchSize, StageWriters: MaxStageWriters}
}

// Run imports the selected tables from the dump at path. A missing or
// unreadable file aborts; malformed rows are counted and skipped.
func (imp *Importer) Run(ctx context.Context, path string, target Target) (Summary, error) {
	s := Summary{}
	steps := []struct {
		target Target
		table  Table
		fn     func(context.Context, *Scanner) (Counts, error)
	}{
		{TargetEmployees, EmployeesTable, imp.importEmployees},
		{TargetContracts, ContractsTable, imp.importContracts},
		{TargetSales, SalesTable, imp.importSales},
	}
	for _, step := range steps {
		if target != TargetAll && target != step.target {
			continue
		}
		slog.Info("Importing legacy table", "table", step.table.Name, "dry_run", imp.DryRun)
		sc := NewScanner(path)
		c, err := step.fn(ctx, sc)
		c.Mismatched = sc.Mismatched
		s[step.table.Name] = c
		metrics.CountDumpRows(step.table.Name, "read", c.Read)
		metrics.CountDumpRows(step.table.Name, "skipped", c.Skipped)
		metrics.CountDumpRows(step.table.Name, "mismatched", c.Mismatched)
		if err != nil {
			return s, fmt.Errorf("error importing %s: %w", step.table.Name, err)
		}
		if c.Mismatched > 0 {
			slog.Warn("dropped tuples with mismatched field count", "table", step.table.Name, "count", c.Mismatched)
		}
	}
	return s, nil
}

func (imp *Importer) importEmployees(_ context.Context, sc *Scanner) (Counts, error) {
	var c Counts
	rows, err := sc.ScanTable(EmployeesTable)
	if err != nil {
		return c, err
	}
	bar := progressbar.Default(int64(len(rows)), "Importing employees")
	defer closeBar(bar)
	for _, r := range rows {
		barAdd(bar, 1)
		c.Read++
		e, o := NormalizeEmployee(r)
		if !o.Accepted() {
			c.Skipped++
			continue
		}
		_, known := imp.ids.Person(e.CPF)
		if imp.DryRun {
			count(&c, known)
			continue
		}
		id, err := imp.db.UpsertEmployee(e)
		if err != nil {
			slog.Warn("error upserting employee", "cpf", e.CPF, "error", err)
			c.Skipped++
			continue
		}
		count(&c, known)
		if !known {
			imp.ids.AddPerson(e.CPF, id)
		}
	}
	return c, nil
}

func (imp *Importer) importContracts(_ context.Context, sc *Scanner) (Counts, error) {
	var c Counts
	rows, err := sc.ScanTable(ContractsTable)
	if err != nil {
		return c, err
	}
	bar := progressbar.Default(int64(len(rows)), "Importing contracts")
	defer closeBar(bar)
	for _, r := range rows {
		barAdd(bar, 1)
		c.Read++
		ct, o := NormalizeContract(r)
		if !o.Accepted() {
			c.Skipped++
			continue
		}
		empID, ok := imp.ids.Person(ct.CPF)
		if !ok {
			c.Skipped++
			continue
		}
		storeID, ok := imp.ids.Store(ct.StoreCode)
		if !ok {
			c.Skipped++
			continue
		}
		if imp.DryRun {
			c.Inserted++
			continue
		}
		inserted, err := imp.db.UpsertContract(empID, storeID, ct)
		if err != nil {
			slog.Warn("error upserting contract", "cpf", ct.CPF, "error", err)
			c.Skipped++
			continue
		}
		count(&c, !inserted)
		if ct.EndedAt == nil {
			imp.ids.SetActiveStore(empID, storeID)
		}
	}
	return c, nil
}

func count(c *Counts, known bool) {
	if known {
		c.Updated++
	} else {
		c.Inserted++
	}
}

func closeBar(bar *progressbar.ProgressBar) {
	if err := bar.Close(); err != nil {
		slog.Warn("could not close the progress bar", "error", err)
	}
}

func barAdd(bar *progressbar.ProgressBar, n int) {
	if err := bar.Add(n); err != nil {
		slog.Warn("could not update the progress bar", "error", err)
	}
}
