package sync

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductRow is one row of the ERP product table. The ERP stores one row per
// reference and size, so a local product aggregates several of them.
type ProductRow struct {
	Reference string
	Name      string
	Brand     string
	Group     string
	Price     decimal.Decimal
	SizeCode  string
	Color     string
	Barcode   string
}

// LookupRow is one row of a small ERP reference table.
type LookupRow struct {
	Code string
	Name string
	CNPJ string
}

// PriceRow carries the current price of one product reference.
type PriceRow struct {
	Reference string
	Price     decimal.Decimal
}

// Source is the read-only view of the ERP database. Implemented by
// erp.Client; the engine never writes to it.
type Source interface {
	// NextReferences returns up to limit distinct product references
	// strictly greater than after, in ascending order. An empty after
	// starts from the beginning.
	NextReferences(ctx context.Context, after string, limit int) ([]string, error)
	// ProductRows fetches every row belonging to the given references.
	ProductRows(ctx context.Context, refs []string) ([]ProductRow, error)
	LookupRows(ctx context.Context, d LookupDescriptor) ([]LookupRow, error)
	PriceRows(ctx context.Context) ([]PriceRow, error)
}
