package cmd

import "github.com/spf13/cobra"

var cleanUp bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates the local database tables",
	RunE: func(_ *cobra.Command, _ []string) error {
		pg, err := loadDatabase()
		if err != nil {
			return err
		}
		defer pg.Close()
		if cleanUp {
			if err := pg.Drop(); err != nil {
				return err
			}
		}
		return pg.Create()
	},
}

func migrateCLI() *cobra.Command {
	migrateCmd = addDatabase(migrateCmd)
	migrateCmd.Flags().BoolVarP(&cleanUp, "clean-up", "c", cleanUp, "drop the tables before creating them")
	return migrateCmd
}
