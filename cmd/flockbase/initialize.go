package main

import (
	"github.com/spf13/cobra"

	"github.com/openflock/flockbase/job"
)

var initializeCmd = &cobra.Command{
	Use:   "initialize",
	Short: "Drop and recreate the database schema (erases all data)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, true, false, func(config job.Config) (job.Job, error) {
			return job.NewInitializeJob(config), nil
		})
	},
}

func init() {
	initializeCmd.Flags().BoolVarP(&options.yes, "yes", "y", false,
		"must be given; confirms erasing every table")

	rootCmd.AddCommand(initializeCmd)
}
