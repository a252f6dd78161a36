package sync

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// variantsBypassLock: a locked product vetoes updates to its own fields, but
// its size variants are still upserted. This mirrors how the merge has always
// behaved in production — the lock models a human taking ownership of the
// product's descriptive data, while variant rows keep tracking the ERP grid.
const variantsBypassLock = true

// Product is the local aggregate row, upserted by its business reference.
type Product struct {
	ID         int64
	Reference  string
	Name       string
	Brand      string
	Group      string
	Price      decimal.Decimal
	SyncLocked bool
}

// Variant is a child row of a product, upserted by (product id, size code).
type Variant struct {
	ProductID int64
	SizeCode  string
	Color     string
	Barcode   string
}

// Store is the write side of the local product tables. Implemented by
// db.PostgreSQL.
type Store interface {
	// ProductByReference returns nil when no product has the reference.
	ProductByReference(ref string) (*Product, error)
	InsertProduct(p Product) (int64, error)
	// UpdateProduct rewrites the mutable fields (everything but the
	// reference, the lock flag and audit stamps) of the product with the
	// given reference.
	UpdateProduct(id int64, p Product) error
	UpsertVariant(v Variant) error
	UpdatePrice(id int64, price decimal.Decimal) error
	UpsertLookup(d LookupDescriptor, row LookupRow) (bool, error)
}

type action int

const (
	actionInserted action = iota
	actionUpdated
	actionSkipped
)

// applyGroup merges one reference's rows into the local store: insert when
// the aggregate is new, update unless it is locked, and upsert every size
// variant by its composite key.
func (e *Engine) applyGroup(ref string, rows []ProductRow) (action, error) {
	agg := Product{
		Reference: ref,
		Name:      rows[0].Name,
		Brand:     rows[0].Brand,
		Group:     rows[0].Group,
		Price:     rows[0].Price,
	}
	existing, err := e.store.ProductByReference(ref)
	if err != nil {
		return actionSkipped, fmt.Errorf("error loading product %q: %w", ref, err)
	}
	var a action
	var id int64
	switch {
	case existing == nil:
		id, err = e.store.InsertProduct(agg)
		if err != nil {
			return actionSkipped, fmt.Errorf("error inserting product %q: %w", ref, err)
		}
		a = actionInserted
	case existing.SyncLocked:
		id = existing.ID
		a = actionSkipped
		if !variantsBypassLock {
			return a, nil
		}
	default:
		id = existing.ID
		if err := e.store.UpdateProduct(id, agg); err != nil {
			return actionSkipped, fmt.Errorf("error updating product %q: %w", ref, err)
		}
		a = actionUpdated
	}
	for _, r := range rows {
		if r.SizeCode == "" {
			continue
		}
		v := Variant{ProductID: id, SizeCode: r.SizeCode, Color: r.Color, Barcode: r.Barcode}
		if err := e.store.UpsertVariant(v); err != nil {
			return a, fmt.Errorf("error upserting variant %q/%q: %w", ref, r.SizeCode, err)
		}
	}
	return a, nil
}
