// Package erp reads the CIGAM ERP database. Everything here is read-only:
// the sync engine pulls pages and full tables through this client and never
// writes back.
package erp

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/huandu/go-sqlbuilder"
	"github.com/shopspring/decimal"

	"github.com/Chirlanio/mercury-sync/sync"
)

const (
	productTable = "tb_produto"
	priceTable   = "tb_preco"

	maxAttempts = 3
)

// Client wraps the MySQL connection to the ERP. Implements sync.Source.
type Client struct {
	db *sql.DB
}

// NewClient connects to the ERP and pings it to make sure it works.
func NewClient(dsn string) (*Client, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not create ERP connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to the ERP database: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) Close() error { return c.db.Close() }

// query runs one read with retries, since the ERP link drops under load.
func (c *Client) query(ctx context.Context, q string, args []any, scan func(*sql.Rows) error) error {
	return retry.Do(
		func() error {
			rows, err := c.db.QueryContext(ctx, q, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			if err := scan(rows); err != nil {
				return retry.Unrecoverable(err)
			}
			return rows.Err()
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.LastErrorOnly(true),
	)
}

// NextReferences returns up to limit distinct product references strictly
// greater than after, ascending. This is the keyset page the sync engine
// walks; an empty after means "from the start".
func (c *Client) NextReferences(ctx context.Context, after string, limit int) ([]string, error) {
	b := sqlbuilder.MySQL.NewSelectBuilder()
	b.Select("referencia").Distinct().From(productTable)
	if after != "" {
		b.Where(b.GreaterThan("referencia", after))
	}
	b.OrderBy("referencia").Asc().Limit(limit)
	q, args := b.Build()
	var refs []string
	err := c.query(ctx, q, args, func(rows *sql.Rows) error {
		for rows.Next() {
			var r string
			if err := rows.Scan(&r); err != nil {
				return fmt.Errorf("error reading reference: %w", err)
			}
			refs = append(refs, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching references after %q: %w", after, err)
	}
	return refs, nil
}

// ProductRows fetches every size/color row belonging to the given references
// in one query.
func (c *Client) ProductRows(ctx context.Context, refs []string) ([]sync.ProductRow, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	in := make([]any, len(refs))
	for i, r := range refs {
		in[i] = r
	}
	b := sqlbuilder.MySQL.NewSelectBuilder()
	b.Select("referencia", "descricao", "marca", "grupo", "preco", "tamanho", "cor", "codigo_barras")
	b.From(productTable)
	b.Where(b.In("referencia", in...))
	b.OrderBy("referencia", "tamanho").Asc()
	q, args := b.Build()
	var out []sync.ProductRow
	err := c.query(ctx, q, args, func(rows *sql.Rows) error {
		for rows.Next() {
			var r sync.ProductRow
			var price, size, color, barcode sql.NullString
			if err := rows.Scan(&r.Reference, &r.Name, &r.Brand, &r.Group, &price, &size, &color, &barcode); err != nil {
				return fmt.Errorf("error reading product row: %w", err)
			}
			if price.Valid {
				p, err := decimal.NewFromString(price.String)
				if err != nil {
					return fmt.Errorf("error parsing price %q for %s: %w", price.String, r.Reference, err)
				}
				r.Price = p
			}
			r.SizeCode = size.String
			r.Color = color.String
			r.Barcode = barcode.String
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching product rows: %w", err)
	}
	return out, nil
}

// LookupRows fetches one small reference table whole.
func (c *Client) LookupRows(ctx context.Context, d sync.LookupDescriptor) ([]sync.LookupRow, error) {
	b := sqlbuilder.MySQL.NewSelectBuilder()
	cols := []string{d.CodeField, d.NameField}
	if d.CNPJField != "" {
		cols = append(cols, d.CNPJField)
	}
	b.Select(cols...).From(d.SourceTable).OrderBy(d.CodeField).Asc()
	q, args := b.Build()
	var out []sync.LookupRow
	err := c.query(ctx, q, args, func(rows *sql.Rows) error {
		for rows.Next() {
			var r sync.LookupRow
			var code, name, doc sql.NullString
			dst := []any{&code, &name}
			if d.CNPJField != "" {
				dst = append(dst, &doc)
			}
			if err := rows.Scan(dst...); err != nil {
				return fmt.Errorf("error reading %s row: %w", d.SourceTable, err)
			}
			r.Code = code.String
			r.Name = name.String
			r.CNPJ = doc.String
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", d.SourceTable, err)
	}
	return out, nil
}

// PriceRows fetches the current price list, one row per reference.
func (c *Client) PriceRows(ctx context.Context) ([]sync.PriceRow, error) {
	b := sqlbuilder.MySQL.NewSelectBuilder()
	b.Select("referencia", "preco").From(priceTable).OrderBy("referencia").Asc()
	q, args := b.Build()
	var out []sync.PriceRow
	err := c.query(ctx, q, args, func(rows *sql.Rows) error {
		for rows.Next() {
			var ref string
			var price sql.NullString
			if err := rows.Scan(&ref, &price); err != nil {
				return fmt.Errorf("error reading price row: %w", err)
			}
			r := sync.PriceRow{Reference: ref}
			if price.Valid {
				p, err := decimal.NewFromString(price.String)
				if err != nil {
					return fmt.Errorf("error parsing price %q for %s: %w", price.String, ref, err)
				}
				r.Price = p
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching price list: %w", err)
	}
	return out, nil
}
