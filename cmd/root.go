package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Chirlanio/mercury-sync/db"
	"github.com/Chirlanio/mercury-sync/erp"
)

const help = `Reconciles external retail data into the local database.

Two sources feed it: the Mercury legacy SQL dump (employees, contracts and
sales from the pre-migration system) and the live CIGAM ERP database
(products, prices and lookup tables). Records are matched by business keys
(CPF, store code, product reference), upserted idempotently and tracked in
durable sync run logs.`

const defaultDataDir = "data"

var (
	dir         string
	databaseURI string
	erpDSN      string
	schema      string
)

var rootCmd = &cobra.Command{
	Use:   "mercury-sync <command>",
	Short: "Reconciles Mercury dump and CIGAM ERP data into the local database",
	Long:  help,
}

func assertDirExists() error {
	i, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("error reading directory %s: %w", dir, err)
	}
	if !i.Mode().IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func loadDatabase() (*db.PostgreSQL, error) {
	u := databaseURI
	if u == "" {
		u = os.Getenv("DATABASE_URL")
	}
	if u == "" {
		return nil, fmt.Errorf("no PostgreSQL URI, set the DATABASE_URL environment variable or use --database-uri")
	}
	pg, err := db.NewPostgreSQL(u, schema)
	if err != nil {
		return nil, err
	}
	return &pg, nil
}

func loadERP() (*erp.Client, error) {
	dsn := erpDSN
	if dsn == "" {
		dsn = os.Getenv("CIGAM_DSN")
	}
	if dsn == "" {
		return nil, fmt.Errorf("no ERP DSN, set the CIGAM_DSN environment variable or use --erp-dsn")
	}
	return erp.NewClient(dsn)
}

func addDataDir(c *cobra.Command) *cobra.Command {
	c.Flags().StringVarP(&dir, "directory", "d", defaultDataDir, "directory of the dump files")
	return c
}

func addDatabase(c *cobra.Command) *cobra.Command {
	c.Flags().StringVarP(&databaseURI, "database-uri", "u", "", "PostgreSQL URI (default DATABASE_URL environment variable)")
	c.Flags().StringVarP(&schema, "postgres-schema", "", "public", "PostgreSQL schema")
	return c
}

func addERP(c *cobra.Command) *cobra.Command {
	c.Flags().StringVarP(&erpDSN, "erp-dsn", "e", "", "CIGAM MySQL DSN (default CIGAM_DSN environment variable)")
	return c
}

// CLI returns the root command with every subcommand attached.
func CLI() *cobra.Command {
	for _, c := range []*cobra.Command{
		migrateCLI(),
		importCLI(),
		syncCLI(),
		runsCLI(),
		cancelCLI(),
		fetchCLI(),
	} {
		rootCmd.AddCommand(c)
	}
	return rootCmd
}

// Execute runs the CLI, exiting with a non-zero status on error.
func Execute() {
	if err := CLI().Execute(); err != nil {
		os.Exit(1)
	}
}
