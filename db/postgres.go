// Package db is the local PostgreSQL store, the destination of every upsert
// the reconciliation pipeline performs. It implements the store interfaces
// of the dump and sync packages.
package db

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Chirlanio/mercury-sync/dump"
	"github.com/Chirlanio/mercury-sync/sync"
)

//go:embed postgres
var sqlFiles embed.FS

type sqlTemplate struct {
	path         fs.DirEntry
	embeddedPath string
	key          string
}

func (s *sqlTemplate) render(p *PostgreSQL) (string, error) {
	t, err := template.ParseFS(sqlFiles, s.embeddedPath)
	if err != nil {
		return "", fmt.Errorf("error parsing %s template: %w", s.path, err)
	}
	var b bytes.Buffer
	if err = t.Execute(&b, p); err != nil {
		return "", fmt.Errorf("error rendering %s template: %w", s.path, err)
	}
	return b.String(), nil
}

func newSQLTemplate(f fs.DirEntry) sqlTemplate {
	return sqlTemplate{
		path:         f,
		embeddedPath: "postgres/" + f.Name(),
		key:          strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())),
	}
}

// PostgreSQL database interface.
type PostgreSQL struct {
	pool   *pgxpool.Pool
	uri    string
	Schema string
}

func (p *PostgreSQL) renderTemplate(key string) (string, error) {
	ls, err := sqlFiles.ReadDir("postgres")
	if err != nil {
		return "", fmt.Errorf("error looking for templates: %w", err)
	}
	for _, f := range ls {
		s := newSQLTemplate(f)
		if s.key != key {
			continue
		}
		return s.render(p)
	}
	return "", fmt.Errorf("template %s not found", key)
}

// Close closes the PostgreSQL connection
func (p *PostgreSQL) Close() { p.pool.Close() }

func (p *PostgreSQL) table(name string) string {
	return fmt.Sprintf("%s.%s", p.Schema, name)
}

// Create creates the required database tables.
func (p *PostgreSQL) Create() error {
	slog.Info("Creating tables", "schema", p.Schema)
	s, err := p.renderTemplate("create")
	if err != nil {
		return fmt.Errorf("error rendering create template: %w", err)
	}
	if _, err := p.pool.Exec(context.Background(), s); err != nil {
		return fmt.Errorf("error creating tables with: %s\n%w", s, err)
	}
	return nil
}

// Drop drops the database tables created by `Create`.
func (p *PostgreSQL) Drop() error {
	slog.Info("Dropping tables", "schema", p.Schema)
	s, err := p.renderTemplate("drop")
	if err != nil {
		return fmt.Errorf("error rendering drop template: %w", err)
	}
	if _, err := p.pool.Exec(context.Background(), s); err != nil {
		return fmt.Errorf("error dropping tables with: %s\n%w", s, err)
	}
	return nil
}

//
// Identity maps (sync.IdentitySource)
//

func (p *PostgreSQL) keyToID(q string) (map[string]int64, error) {
	rows, err := p.pool.Query(context.Background(), q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := map[string]int64{}
	for rows.Next() {
		var k string
		var id int64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, err
		}
		m[k] = id
	}
	return m, rows.Err()
}

// StoreIDsByCode bulk-loads the store identity map.
func (p *PostgreSQL) StoreIDsByCode() (map[string]int64, error) {
	m, err := p.keyToID(fmt.Sprintf("SELECT code, id FROM %s", p.table("stores")))
	if err != nil {
		return nil, fmt.Errorf("error loading store codes: %w", err)
	}
	return m, nil
}

// EmployeeIDsByCPF bulk-loads the employee identity map.
func (p *PostgreSQL) EmployeeIDsByCPF() (map[string]int64, error) {
	m, err := p.keyToID(fmt.Sprintf("SELECT cpf, id FROM %s", p.table("employees")))
	if err != nil {
		return nil, fmt.Errorf("error loading employee CPFs: %w", err)
	}
	return m, nil
}

// ActiveContractStores maps each employee to the store of their newest
// open-ended contract.
func (p *PostgreSQL) ActiveContractStores() (map[int64]int64, error) {
	q := fmt.Sprintf(`
		SELECT DISTINCT ON (employee_id) employee_id, store_id
		FROM %s
		WHERE ended_at IS NULL
		ORDER BY employee_id, started_at DESC`, p.table("contracts"))
	rows, err := p.pool.Query(context.Background(), q)
	if err != nil {
		return nil, fmt.Errorf("error loading active contracts: %w", err)
	}
	defer rows.Close()
	m := map[int64]int64{}
	for rows.Next() {
		var emp, store int64
		if err := rows.Scan(&emp, &store); err != nil {
			return nil, fmt.Errorf("error reading active contract: %w", err)
		}
		m[emp] = store
	}
	return m, rows.Err()
}

//
// Legacy dump import (dump.database)
//

// UpsertEmployee inserts or updates an employee by CPF and returns its id.
func (p *PostgreSQL) UpsertEmployee(e dump.Employee) (int64, error) {
	q := fmt.Sprintf(`
		INSERT INTO %s (cpf, name, birth_date, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cpf) DO UPDATE SET
			name = EXCLUDED.name,
			birth_date = EXCLUDED.birth_date,
			category = EXCLUDED.category,
			updated_at = now()
		RETURNING id`, p.table("employees"))
	var id int64
	err := p.pool.QueryRow(context.Background(), q, e.CPF, e.Name, e.BirthDate, e.Category).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error upserting employee %s: %w", e.CPF, err)
	}
	return id, nil
}

// UpsertContract inserts or updates a contract by its (employee, start date)
// key, reporting whether a new row was created.
func (p *PostgreSQL) UpsertContract(employeeID, storeID int64, c dump.Contract) (bool, error) {
	q := fmt.Sprintf(`
		INSERT INTO %s (employee_id, store_id, started_at, ended_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (employee_id, started_at) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			ended_at = EXCLUDED.ended_at
		RETURNING (xmax = 0)`, p.table("contracts"))
	var inserted bool
	err := p.pool.QueryRow(context.Background(), q, employeeID, storeID, c.StartedAt, c.EndedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("error upserting contract: %w", err)
	}
	return inserted, nil
}

// InsertSales inserts a batch of resolved sales, skipping legacy ids already
// present, and reports how many rows were actually inserted.
func (p *PostgreSQL) InsertSales(batch []dump.SaleRecord) (int, error) {
	q := fmt.Sprintf(`
		INSERT INTO %s (legacy_id, employee_id, store_id, sold_at, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (legacy_id) DO NOTHING`, p.table("sales"))
	b := &pgx.Batch{}
	for _, s := range batch {
		b.Queue(q, s.LegacyID, s.EmployeeID, s.StoreID, s.SoldAt, s.Amount)
	}
	br := p.pool.SendBatch(context.Background(), b)
	defer br.Close()
	n := 0
	for range batch {
		ct, err := br.Exec()
		if err != nil {
			return n, fmt.Errorf("error inserting sales batch: %w", err)
		}
		n += int(ct.RowsAffected())
	}
	return n, nil
}

//
// Products (sync.Store)
//

// ProductByReference returns the product with the given business reference,
// or nil when there is none.
func (p *PostgreSQL) ProductByReference(ref string) (*sync.Product, error) {
	q := fmt.Sprintf(`
		SELECT id, reference, name, brand, product_group, price, sync_locked
		FROM %s WHERE reference = $1`, p.table("products"))
	var out sync.Product
	err := p.pool.QueryRow(context.Background(), q, ref).Scan(
		&out.ID, &out.Reference, &out.Name, &out.Brand, &out.Group, &out.Price, &out.SyncLocked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error looking for product %s: %w", ref, err)
	}
	return &out, nil
}

func (p *PostgreSQL) InsertProduct(pr sync.Product) (int64, error) {
	q := fmt.Sprintf(`
		INSERT INTO %s (reference, name, brand, product_group, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, p.table("products"))
	var id int64
	err := p.pool.QueryRow(context.Background(), q, pr.Reference, pr.Name, pr.Brand, pr.Group, pr.Price).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error inserting product %s: %w", pr.Reference, err)
	}
	return id, nil
}

// UpdateProduct rewrites the mutable fields of a product. The reference, the
// lock flag and created_at are never touched.
func (p *PostgreSQL) UpdateProduct(id int64, pr sync.Product) error {
	q := fmt.Sprintf(`
		UPDATE %s SET name = $2, brand = $3, product_group = $4, price = $5, updated_at = now()
		WHERE id = $1`, p.table("products"))
	if _, err := p.pool.Exec(context.Background(), q, id, pr.Name, pr.Brand, pr.Group, pr.Price); err != nil {
		return fmt.Errorf("error updating product %d: %w", id, err)
	}
	return nil
}

func (p *PostgreSQL) UpsertVariant(v sync.Variant) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (product_id, size_code, color, barcode)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, size_code) DO UPDATE SET
			color = EXCLUDED.color,
			barcode = EXCLUDED.barcode`, p.table("product_variants"))
	if _, err := p.pool.Exec(context.Background(), q, v.ProductID, v.SizeCode, v.Color, v.Barcode); err != nil {
		return fmt.Errorf("error upserting variant %d/%s: %w", v.ProductID, v.SizeCode, err)
	}
	return nil
}

func (p *PostgreSQL) UpdatePrice(id int64, price decimal.Decimal) error {
	q := fmt.Sprintf("UPDATE %s SET price = $2, updated_at = now() WHERE id = $1", p.table("products"))
	if _, err := p.pool.Exec(context.Background(), q, id, price); err != nil {
		return fmt.Errorf("error updating price of product %d: %w", id, err)
	}
	return nil
}

// UpsertLookup writes one lookup row into its local entity table, reporting
// whether it was inserted. Entity names come from the fixed descriptor list,
// never from user input.
func (p *PostgreSQL) UpsertLookup(d sync.LookupDescriptor, row sync.LookupRow) (bool, error) {
	var q string
	args := []any{row.Code, row.Name}
	if d.CNPJField != "" {
		q = fmt.Sprintf(`
			INSERT INTO %s (code, name, cnpj) VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, cnpj = EXCLUDED.cnpj
			RETURNING (xmax = 0)`, p.table(d.Entity))
		args = append(args, row.CNPJ)
	} else {
		q = fmt.Sprintf(`
			INSERT INTO %s (code, name) VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			RETURNING (xmax = 0)`, p.table(d.Entity))
	}
	var inserted bool
	if err := p.pool.QueryRow(context.Background(), q, args...).Scan(&inserted); err != nil {
		return false, fmt.Errorf("error upserting %s %s: %w", d.Entity, row.Code, err)
	}
	return inserted, nil
}

//
// Sync runs (sync.RunStore)
//

const runColumns = `id, sync_type, status, total_records, processed_records,
	inserted_records, updated_records, skipped_records, error_count,
	error_details, last_reference, started_at, completed_at, started_by`

func scanRun(row pgx.Row) (*sync.Run, error) {
	var r sync.Run
	err := row.Scan(
		&r.ID, &r.Type, &r.Status, &r.TotalRecords, &r.ProcessedRecords,
		&r.InsertedRecords, &r.UpdatedRecords, &r.SkippedRecords, &r.ErrorCount,
		&r.ErrorDetails, &r.LastReference, &r.StartedAt, &r.CompletedAt, &r.StartedBy,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRun opens a pending run, refusing when a run of the same type is
// still pending or running.
func (p *PostgreSQL) CreateRun(t sync.Type, startedBy string) (*sync.Run, error) {
	q := fmt.Sprintf(`
		INSERT INTO %[1]s (sync_type, started_by)
		SELECT $1, $2
		WHERE NOT EXISTS (
			SELECT 1 FROM %[1]s WHERE sync_type = $1 AND status IN ('pending', 'running')
		)
		RETURNING id, started_at`, p.table("sync_runs"))
	r := sync.Run{Type: t, Status: sync.StatusPending, StartedBy: startedBy}
	err := p.pool.QueryRow(context.Background(), q, t, startedBy).Scan(&r.ID, &r.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", t, sync.ErrRunInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating %s run: %w", t, err)
	}
	return &r, nil
}

func (p *PostgreSQL) MarkRunning(id int64) error {
	q := fmt.Sprintf("UPDATE %s SET status = 'running' WHERE id = $1 AND status = 'pending'", p.table("sync_runs"))
	ct, err := p.pool.Exec(context.Background(), q, id)
	if err != nil {
		return fmt.Errorf("error marking run %d running: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("run %d is not pending", id)
	}
	return nil
}

// RecordChunk applies an additive progress delta. Counters only grow; the
// cursor only moves when the delta carries one; terminal runs are left alone.
func (p *PostgreSQL) RecordChunk(id int64, pr sync.Progress) error {
	q := fmt.Sprintf(`
		UPDATE %s SET
			total_records = total_records + $2,
			processed_records = processed_records + $3,
			inserted_records = inserted_records + $4,
			updated_records = updated_records + $5,
			skipped_records = skipped_records + $6,
			error_count = error_count + $7,
			error_details = error_details || COALESCE($8, '{}'::text[]),
			last_reference = CASE WHEN $9 <> '' THEN $9 ELSE last_reference END
		WHERE id = $1 AND status IN ('pending', 'running')`, p.table("sync_runs"))
	details := pr.ErrorDetails
	if details == nil {
		details = []string{}
	}
	_, err := p.pool.Exec(context.Background(), q, id,
		pr.Total, pr.Processed, pr.Inserted, pr.Updated, pr.Skipped,
		pr.Errors, details, pr.LastReference,
	)
	if err != nil {
		return fmt.Errorf("error recording chunk for run %d: %w", id, err)
	}
	return nil
}

func (p *PostgreSQL) RunStatus(id int64) (sync.Status, error) {
	q := fmt.Sprintf("SELECT status FROM %s WHERE id = $1", p.table("sync_runs"))
	var s sync.Status
	if err := p.pool.QueryRow(context.Background(), q, id).Scan(&s); err != nil {
		return "", fmt.Errorf("error reading status of run %d: %w", id, err)
	}
	return s, nil
}

// FinishRun sets a terminal status exactly once.
func (p *PostgreSQL) FinishRun(id int64, s sync.Status) error {
	if !s.Terminal() {
		return fmt.Errorf("%s is not a terminal status", s)
	}
	q := fmt.Sprintf(`
		UPDATE %s SET status = $2, completed_at = now()
		WHERE id = $1 AND status IN ('pending', 'running')`, p.table("sync_runs"))
	ct, err := p.pool.Exec(context.Background(), q, id, s)
	if err != nil {
		return fmt.Errorf("error finishing run %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("run %d is already terminal", id)
	}
	return nil
}

// CancelRun flips a live run to cancelled; the engine observes the status on
// its next group and stops.
func (p *PostgreSQL) CancelRun(id int64) error {
	return p.FinishRun(id, sync.StatusCancelled)
}

func (p *PostgreSQL) GetRun(id int64) (*sync.Run, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", runColumns, p.table("sync_runs"))
	r, err := scanRun(p.pool.QueryRow(context.Background(), q, id))
	if err != nil {
		return nil, fmt.Errorf("error reading run %d: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (p *PostgreSQL) ListRuns(limit int) ([]sync.Run, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY started_at DESC LIMIT $1",
		runColumns, p.table("sync_runs"),
	)
	rows, err := p.pool.Query(context.Background(), q, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	defer rows.Close()
	var out []sync.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("error reading run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// NewPostgreSQL creates a new PostgreSQL connection and pings it to make sure
// it works.
func NewPostgreSQL(uri, schema string) (PostgreSQL, error) {
	cfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return PostgreSQL{}, fmt.Errorf("could not create database config: %w", err)
	}
	cfg.MaxConns = 16
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute
	conn, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return PostgreSQL{}, fmt.Errorf("could not connect to the database: %w", err)
	}
	p := PostgreSQL{pool: conn, uri: uri, Schema: schema}
	if err := p.pool.Ping(context.Background()); err != nil {
		return PostgreSQL{}, fmt.Errorf("could not connect to postgres: %w", err)
	}
	return p, nil
}
