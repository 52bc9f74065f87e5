package main

import (
	"github.com/spf13/cobra"

	"github.com/openflock/flockbase/job"
	"github.com/openflock/flockbase/store"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch data for targets and persist it",
	Long: `Targets are user ids or screen names (never mixed), plus tag:NAME
and list:REF forms that expand to their member sets. List references are a
numeric id or owner/slug.`,
}

var fetchUsersCmd = &cobra.Command{
	Use:   "users <target>...",
	Short: "Refresh profile snapshots for every target",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, true, true, func(config job.Config) (job.Job, error) {
			targets, err := job.ParseUserTargets(args)
			if err != nil {
				return nil, err
			}
			return job.NewUserInfoJob(config, targets), nil
		})
	},
}

var fetchFollowersCmd = &cobra.Command{
	Use:   "followers <target>...",
	Short: "Fetch each target's followers and reconcile the edge history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFollowJob(cmd, args, store.Followers)
	},
}

var fetchFriendsCmd = &cobra.Command{
	Use:   "friends <target>...",
	Short: "Fetch each target's friends and reconcile the edge history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFollowJob(cmd, args, store.Friends)
	},
}

var fetchTweetsCmd = &cobra.Command{
	Use:   "tweets <target>...",
	Short: "Fetch each target's timeline past the newest persisted tweet",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, true, true, func(config job.Config) (job.Job, error) {
			targets, err := job.ParseUserTargets(args)
			if err != nil {
				return nil, err
			}
			return job.NewTweetsJob(config, targets), nil
		})
	},
}

var fetchListMembersCmd = &cobra.Command{
	Use:   "list-members <list>...",
	Short: "Fetch each list's members and reconcile the membership history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, true, true, func(config job.Config) (job.Job, error) {
			targets, err := job.ParseListTargets(args)
			if err != nil {
				return nil, err
			}
			return job.NewListMembersJob(config, targets), nil
		})
	},
}

func runFollowJob(cmd *cobra.Command, args []string, direction store.Direction) error {
	return runJob(cmd, true, true, func(config job.Config) (job.Job, error) {
		targets, err := job.ParseUserTargets(args)
		if err != nil {
			return nil, err
		}
		return job.NewFollowJob(config, targets, direction), nil
	})
}

func init() {
	subcommands := []*cobra.Command{
		fetchUsersCmd,
		fetchFollowersCmd,
		fetchFriendsCmd,
		fetchTweetsCmd,
		fetchListMembersCmd,
	}
	for _, cmd := range subcommands {
		addTargetFlags(cmd)
		addArchiveFlags(cmd)
	}

	for _, cmd := range []*cobra.Command{fetchFollowersCmd, fetchFriendsCmd, fetchListMembersCmd} {
		cmd.Flags().IntVarP(&options.batchSize, "batch-size", "j", 0,
			"reconcile in database batches of this size instead of all at once; slower but memory bounded")
	}

	fetchTweetsCmd.Flags().IntVarP(&options.maxTweets, "max-tweets", "r", 0,
		"stop after this many tweets per target")
	fetchTweetsCmd.Flags().BoolVarP(&options.oldTweets, "old-tweets", "o", false,
		"refetch from the beginning of the timeline instead of resuming")

	fetchCmd.AddCommand(subcommands...)
	rootCmd.AddCommand(fetchCmd)
}
