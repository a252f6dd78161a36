package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Chirlanio/mercury-sync/fetch"
)

var (
	bucket       string
	prefix       string
	skipExisting bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Downloads the Mercury dump files from object storage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := assertDirExists(); err != nil {
			return err
		}
		return fetch.Fetch(cmd.Context(), bucket, prefix, dir, skipExisting)
	},
}

func fetchCLI() *cobra.Command {
	fetchCmd = addDataDir(fetchCmd)
	fetchCmd.Flags().StringVarP(&bucket, "bucket", "b", "mercury-dumps", "S3 bucket holding the dump files")
	fetchCmd.Flags().StringVarP(&prefix, "prefix", "p", "", "key prefix to list")
	fetchCmd.Flags().BoolVarP(&skipExisting, "skip-existing", "x", true, "skip files already in the data directory")
	return fetchCmd
}
