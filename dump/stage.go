package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// stageChunkSize groups staged sales into one Badger transaction.
const stageChunkSize = 1000

type stagedItem struct {
	key, value []byte
}

// saleStage is a temporary Badger storage the sales import writes normalized,
// resolved sales into before inserting them. Keys are the zero-padded legacy
// ids, so repeated rows in the dump collapse into one and the apply phase
// iterates in id order.
type saleStage struct {
	db   *badger.DB
	path string
}

type noLogger struct{}

func (*noLogger) Errorf(string, ...any)   {}
func (*noLogger) Warningf(string, ...any) {}
func (*noLogger) Infof(string, ...any)    {}
func (*noLogger) Debugf(string, ...any)   {}

func newSaleStage(dir string) (*saleStage, error) {
	opt := badger.DefaultOptions(dir)
	opt = opt.WithNumMemtables(1)
	opt = opt.WithMemTableSize(16 << 20)
	opt = opt.WithValueLogFileSize(64 << 20)
	if os.Getenv("DEBUG") == "" {
		opt = opt.WithLogger(&noLogger{})
	}
	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("error creating badger staging storage: %w", err)
	}
	return &saleStage{db: db, path: dir}, nil
}

func (st *saleStage) close() error { return st.db.Close() }

func (st *saleStage) writeChunk(items []stagedItem) error {
	return st.db.Update(func(tx *badger.Txn) error {
		for _, i := range items {
			if err := tx.Set(i.key, i.value); err != nil {
				return fmt.Errorf("could not set key-value in chunk: %w", err)
			}
		}
		return nil
	})
}

// each iterates the staged sales in key order.
func (st *saleStage) each(fn func(SaleRecord) error) error {
	return st.db.View(func(tx *badger.Txn) error {
		it := tx.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var s SaleRecord
				if err := json.Unmarshal(v, &s); err != nil {
					return fmt.Errorf("error decoding staged sale: %w", err)
				}
				return fn(s)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func stageKey(legacyID int64) []byte {
	return fmt.Appendf(nil, "%020d", legacyID)
}

// importSales streams the vendas table, resolving and staging each sale in
// Badger, then applies the staged records to the database in batches. Dry
// runs stop after normalization.
func (imp *Importer) importSales(ctx context.Context, sc *Scanner) (Counts, error) {
	var c Counts
	if imp.DryRun {
		bar := progressbar.Default(-1, "Scanning sales")
		defer closeBar(bar)
		err := sc.StreamTable(SalesTable, func(r Row) error {
			barAdd(bar, 1)
			c.Read++
			if _, o := NormalizeSale(r); !o.Accepted() {
				c.Skipped++
			} else {
				c.Inserted++
			}
			return nil
		})
		return c, err
	}
	dir, err := os.MkdirTemp("", "mercury-sync-*")
	if err != nil {
		return c, fmt.Errorf("error creating temporary staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("could not remove temporary staging directory", "path", dir, "error", err)
		}
	}()
	st, err := newSaleStage(dir)
	if err != nil {
		return c, err
	}
	defer func() {
		if err := st.close(); err != nil {
			slog.Warn("could not close staging storage", "path", dir, "error", err)
		}
	}()
	if err := imp.stageSales(ctx, sc, st, &c); err != nil {
		return c, err
	}
	return c, imp.applySales(st, &c)
}

func (imp *Importer) stageSales(ctx context.Context, sc *Scanner, st *saleStage, c *Counts) error {
	bar := progressbar.Default(-1, "Staging sales")
	defer closeBar(bar)
	g, ctx := errgroup.WithContext(ctx)
	ch := make(chan stagedItem, 1000)
	g.Go(func() error {
		defer close(ch)
		return sc.StreamTable(SalesTable, func(r Row) error {
			c.Read++
			s, o := NormalizeSale(r)
			if !o.Accepted() {
				c.Skipped++
				return nil
			}
			empID, ok := imp.ids.Person(s.CPF)
			if !ok {
				c.Skipped++
				return nil
			}
			storeID, ok := imp.ids.SaleStore(s.StoreCode, empID)
			if !ok {
				c.Skipped++
				return nil
			}
			rec := SaleRecord{
				LegacyID:   s.LegacyID,
				EmployeeID: empID,
				StoreID:    storeID,
				SoldAt:     s.SoldAt,
				Amount:     s.Amount,
			}
			v, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("error encoding sale %d: %w", s.LegacyID, err)
			}
			select {
			case ch <- stagedItem{key: stageKey(s.LegacyID), value: v}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	workers := imp.StageWriters
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			chunk := make([]stagedItem, 0, stageChunkSize)
			flush := func() error {
				if len(chunk) == 0 {
					return nil
				}
				if err := st.writeChunk(chunk); err != nil {
					return fmt.Errorf("error staging chunk: %w", err)
				}
				barAdd(bar, len(chunk))
				chunk = chunk[:0]
				return nil
			}
			for i := range ch {
				chunk = append(chunk, i)
				if len(chunk) >= stageChunkSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			return flush()
		})
	}
	return g.Wait()
}

func (imp *Importer) applySales(st *saleStage, c *Counts) error {
	bar := progressbar.Default(-1, "Inserting sales")
	defer closeBar(bar)
	batch := make([]SaleRecord, 0, imp.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := imp.db.InsertSales(batch)
		if err != nil {
			return fmt.Errorf("error inserting sales batch: %w", err)
		}
		c.Inserted += n
		c.Skipped += len(batch) - n
		barAdd(bar, len(batch))
		batch = batch[:0]
		return nil
	}
	err := st.each(func(s SaleRecord) error {
		batch = append(batch, s)
		if len(batch) >= imp.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}
