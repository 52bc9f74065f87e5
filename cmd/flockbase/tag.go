package main

import (
	"github.com/spf13/cobra"

	"github.com/openflock/flockbase/job"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage user tags",
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tag; creating an existing tag is a no-op",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, true, false, func(config job.Config) (job.Job, error) {
			return job.NewCreateTagJob(config, args[0]), nil
		})
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tag and every assignment carrying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, true, false, func(config job.Config) (job.Job, error) {
			return job.NewDeleteTagJob(config, args[0]), nil
		})
	},
}

var tagApplyCmd = &cobra.Command{
	Use:   "apply <name> <target>...",
	Short: "Apply a tag to the resolved targets",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// With --skip-resolve the whole run stays offline, so credentials
		// are only required when resolution may reach the api.
		return runJob(cmd, true, !options.skipResolve, func(config job.Config) (job.Job, error) {
			targets, err := job.ParseUserTargets(args[1:])
			if err != nil {
				return nil, err
			}
			return job.NewApplyTagJob(config, args[0], targets), nil
		})
	},
}

func init() {
	addTargetFlags(tagApplyCmd)

	tagCmd.AddCommand(tagCreateCmd, tagDeleteCmd, tagApplyCmd)
	rootCmd.AddCommand(tagCmd)
}
