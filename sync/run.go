// Package sync reconciles external data sources into the local store: a
// keyset-paginated incremental product sync against the CIGAM ERP, full-table
// passes for lookup and price data, and the identity maps the Mercury dump
// import resolves against. Every run is tracked in a durable sync_runs row,
// the only artifact this package owns.
package sync

import (
	"errors"
	"time"
)

// ErrRunInProgress is returned when a run of the same type is still pending
// or running; two drivers must never race the same cursor.
var ErrRunInProgress = errors.New("a run of this type is already in progress")

// Type identifies what a run synchronizes.
type Type string

const (
	TypeLookups  Type = "lookups"
	TypeProducts Type = "products"
	TypePrices   Type = "prices"
)

// Status is the run lifecycle: pending → running → completed or cancelled.
// Terminal states are set exactly once and never left.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Run is the persisted log of one synchronization. Counters only ever grow;
// callers outside this package treat it as read-only.
type Run struct {
	ID               int64
	Type             Type
	Status           Status
	TotalRecords     int
	ProcessedRecords int
	InsertedRecords  int
	UpdatedRecords   int
	SkippedRecords   int
	ErrorCount       int
	ErrorDetails     []string
	LastReference    string
	StartedAt        time.Time
	CompletedAt      *time.Time
	StartedBy        string
}

// Progress is the additive delta one chunk contributes to a run.
type Progress struct {
	Total         int
	Processed     int
	Inserted      int
	Updated       int
	Skipped       int
	Errors        int
	ErrorDetails  []string
	LastReference string
}

func (p *Progress) add(a action) {
	p.Processed++
	switch a {
	case actionInserted:
		p.Inserted++
	case actionUpdated:
		p.Updated++
	case actionSkipped:
		p.Skipped++
	}
}

// RunStore persists sync runs. Implemented by db.PostgreSQL; the engine is
// its only writer.
type RunStore interface {
	// CreateRun opens a new pending run, refusing if another run of the
	// same type is still pending or running.
	CreateRun(t Type, startedBy string) (*Run, error)
	MarkRunning(id int64) error
	// RecordChunk applies an additive progress delta and, when the delta
	// carries one, moves the cursor forward. No-op on terminal runs.
	RecordChunk(id int64, p Progress) error
	// RunStatus re-reads the live status; the engine polls it between
	// groups so an external cancel takes effect mid-chunk.
	RunStatus(id int64) (Status, error)
	// FinishRun sets a terminal status once; finishing an already terminal
	// run is an error.
	FinishRun(id int64, s Status) error
}
