package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rds-restore",
	Short: "Restore an RDS instance from a snapshot in place",
	Long: `rds-restore replaces a running RDS instance with a restore of a snapshot.
It restores the snapshot under a temporary name, deletes the original
instance, and renames the restored instance to the original identifier.`,
}

func Execute() error {
	return rootCmd.Execute()
}
