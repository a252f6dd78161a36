package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Chirlanio/mercury-sync/db"
	"github.com/Chirlanio/mercury-sync/sync"
)

const syncHelper = `
Synchronize the live CIGAM ERP database into the local one.

Products are walked with keyset pagination: each chunk pulls a page of
distinct references past the cursor, merges them and persists the cursor, so
an interrupted sync resumes where it stopped (pass --from to seed the cursor
of a new run). Lookups and prices are small enough for one full pass.

A record whose product is sync-locked keeps its fields untouched; its size
variants are still updated. Cancel a live run with "mercury-sync cancel".
`

var (
	pageSize  int
	fromRef   string
	startedBy string
)

func newEngine() (*sync.Engine, *db.PostgreSQL, func(), error) {
	pg, err := loadDatabase()
	if err != nil {
		return nil, nil, nil, err
	}
	erpc, err := loadERP()
	if err != nil {
		pg.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := erpc.Close(); err != nil {
			slog.Warn("could not close the ERP connection", "error", err)
		}
		pg.Close()
	}
	return sync.NewEngine(pg, erpc, pg), pg, cleanup, nil
}

type runStatuser interface {
	RunStatus(id int64) (sync.Status, error)
}

// finishUnlessCancelled completes the run, unless an external cancel already
// put it in a terminal state.
func finishUnlessCancelled(e *sync.Engine, runs runStatuser, run *sync.Run) error {
	st, err := runs.RunStatus(run.ID)
	if err != nil {
		return err
	}
	if st == sync.StatusCancelled {
		slog.Warn("Run was cancelled", "run", run.ID)
		return nil
	}
	return e.Finish(run)
}

func reportRun(run *sync.Run) {
	slog.Info(
		"Sync finished",
		"run", run.ID,
		"type", run.Type,
		"status", run.Status,
		"processed", run.ProcessedRecords,
		"inserted", run.InsertedRecords,
		"updated", run.UpdatedRecords,
		"skipped", run.SkippedRecords,
		"errors", run.ErrorCount,
	)
}

var syncProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "Runs the keyset-paginated product sync",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, pg, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()
		run, err := engine.Start(sync.TypeProducts, startedBy)
		if err != nil {
			return err
		}
		if fromRef != "" {
			run.LastReference = fromRef
		}
		for {
			res, err := engine.ProcessChunk(cmd.Context(), run, pageSize)
			if err != nil {
				return err
			}
			if res.Cancelled {
				slog.Warn("Run was cancelled", "run", run.ID, "cursor", run.LastReference)
				return nil
			}
			slog.Info("Chunk processed", "run", run.ID, "cursor", run.LastReference, "processed", run.ProcessedRecords)
			if !res.HasMore {
				break
			}
		}
		if err := finishUnlessCancelled(engine, pg, run); err != nil {
			return err
		}
		reportRun(run)
		return nil
	},
}

var syncLookupsCmd = &cobra.Command{
	Use:   "lookups",
	Short: "Synchronizes stores, brands, product groups and suppliers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, pg, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()
		run, err := engine.Start(sync.TypeLookups, startedBy)
		if err != nil {
			return err
		}
		if err := engine.SyncLookups(cmd.Context(), run); err != nil {
			return err
		}
		if err := finishUnlessCancelled(engine, pg, run); err != nil {
			return err
		}
		reportRun(run)
		return nil
	},
}

var syncPricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Bulk-updates product prices from the ERP price list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, pg, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()
		run, err := engine.Start(sync.TypePrices, startedBy)
		if err != nil {
			return err
		}
		if err := engine.SyncPrices(cmd.Context(), run); err != nil {
			return err
		}
		if err := finishUnlessCancelled(engine, pg, run); err != nil {
			return err
		}
		reportRun(run)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <source>",
	Short: "Synchronizes the CIGAM ERP into the local database",
	Long:  syncHelper,
	RunE: func(_ *cobra.Command, _ []string) error {
		return errors.New("sync requires a source: products, lookups or prices")
	},
}

func syncCLI() *cobra.Command {
	syncProductsCmd.Flags().IntVarP(&pageSize, "page-size", "s", 100, "distinct references per chunk")
	syncProductsCmd.Flags().StringVarP(&fromRef, "from", "f", "", "seed the cursor, resuming past this reference")
	for _, c := range []*cobra.Command{syncProductsCmd, syncLookupsCmd, syncPricesCmd} {
		c.Flags().StringVarP(&startedBy, "started-by", "", "cli", "who started this run, recorded in the log")
		c = addDatabase(c)
		c = addERP(c)
		syncCmd.AddCommand(c)
	}
	return syncCmd
}
