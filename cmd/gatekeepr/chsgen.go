package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/storage"
)

// chsgen command
var chsgenCmd = &cobra.Command{
	Use:   "chsgen DATABASE_DIR",
	Short: "Recompute the checksum file of a database directory",
	Long: `Regenerates the checksum records for every database file after a manual
edit, so the daemon accepts the directory on its next load. Run it against
the live database directory (the "db" subdirectory of the storage root).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storage.WriteChecksums(args[0]); err != nil {
			return err
		}
		fmt.Printf("Checksums regenerated in %s\n", args[0])
		return nil
	},
}
