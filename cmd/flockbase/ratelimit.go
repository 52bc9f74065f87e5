package main

import (
	"github.com/spf13/cobra"

	"github.com/openflock/flockbase/job"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Report every credential's rate limit windows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, false, true, func(config job.Config) (job.Job, error) {
			return job.NewRateLimitStatusJob(config, options.full), nil
		})
	},
}

func init() {
	ratelimitCmd.Flags().BoolVarP(&options.full, "full", "f", false,
		"report every endpoint the api answers for, not just the ones this tool calls")

	rootCmd.AddCommand(ratelimitCmd)
}
