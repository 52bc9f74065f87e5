package job

import (
	"context"
	"strconv"
)

// UserInfoJob refetches the profile of every target and appends a fresh
// snapshot row for each. Unlike the other fetch jobs it always goes to the
// network, even for targets the database already knows.
type UserInfoJob struct {
	*run
	config  Config
	targets []Target
}

func NewUserInfoJob(config Config, targets []Target) *UserInfoJob {
	return &UserInfoJob{run: newRun("userinfo", config.Bus), config: config, targets: targets}
}

func (j *UserInfoJob) Kind() string {
	return "userinfo"
}

func (j *UserInfoJob) Run(ctx context.Context) (*Summary, error) {
	if err := j.config.Store.VerifySchemaVersion(); err != nil {
		return j.run.fail(err)
	}

	j.run.setState(StateResolving)
	resolver := NewResolver(j.config.Store, j.config.Client)

	j.run.setState(StateFetching)
	resolution, err := resolver.HydrateUsers(ctx, j.targets)
	if err != nil {
		return j.run.fail(err)
	}
	j.run.summary.Totals.Resolved = len(resolution.UserIds)
	j.run.summary.Totals.Snapshots = resolution.Snapshots
	if err := j.run.noteUnresolved(resolution.Unresolved, j.config.AllowMissing); err != nil {
		return j.run.fail(err)
	}

	for _, userId := range resolution.UserIds {
		j.run.targetDone(TargetOutcome{
			Target:            strconv.FormatInt(userId, 10),
			SnapshotsInserted: 1,
		})
	}
	return j.run.done()
}
