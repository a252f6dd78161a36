package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Chirlanio/mercury-sync/dump"
	"github.com/Chirlanio/mercury-sync/sync"
)

const importHelper = `
Import the Mercury legacy dump into the local database.

The dump is a MySQL .sql file scanned start to finish per table, never loaded
whole into memory. Employees and contracts are imported directly; sales are
staged in a temporary key-value storage first, which dedupes repeated legacy
ids. Identity maps (store code and CPF) are loaded once before the import and
updated as new employees and contracts land, so later tables can resolve
records inserted by earlier ones.

With --dry-run the dump is only scanned and classified; nothing is written.
`

var (
	importTable  string
	importDryRun bool
	batchSize    int
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Imports the Mercury legacy dump",
	Long:  importHelper,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := dump.ParseTarget(importTable)
		if err != nil {
			return err
		}
		var imp *dump.Importer
		if importDryRun {
			imp = dump.NewImporter(nil, sync.NewIdentity())
		} else {
			pg, err := loadDatabase()
			if err != nil {
				return fmt.Errorf("could not find database: %w", err)
			}
			defer pg.Close()
			ids, err := sync.LoadIdentity(pg)
			if err != nil {
				return err
			}
			imp = dump.NewImporter(pg, ids)
		}
		imp.DryRun = importDryRun
		imp.BatchSize = batchSize
		s, err := imp.Run(cmd.Context(), args[0], target)
		for t, c := range s {
			slog.Info(
				"Table imported",
				"table", t,
				"read", c.Read,
				"inserted", c.Inserted,
				"updated", c.Updated,
				"skipped", c.Skipped,
				"mismatched", c.Mismatched,
			)
		}
		return err
	},
}

func importCLI() *cobra.Command {
	importCmd.Flags().StringVarP(&importTable, "table", "t", string(dump.TargetAll), "table to import (employees, contracts, sales or all)")
	importCmd.Flags().BoolVarP(&importDryRun, "dry-run", "n", false, "scan and classify the dump without writing")
	importCmd.Flags().IntVarP(&batchSize, "batch-size", "b", dump.BatchSize, "size of the sales batch to save to the database")
	return addDatabase(importCmd)
}
