package job

import "context"

// CreateTagJob creates a named tag, or finds the existing one.
type CreateTagJob struct {
	*run
	config Config
	name   string
}

func NewCreateTagJob(config Config, name string) *CreateTagJob {
	return &CreateTagJob{run: newRun("tag-create", config.Bus), config: config, name: name}
}

func (j *CreateTagJob) Kind() string {
	return "tag-create"
}

func (j *CreateTagJob) Run(ctx context.Context) (*Summary, error) {
	if err := j.config.Store.VerifySchemaVersion(); err != nil {
		return j.run.fail(err)
	}
	j.run.setState(StatePersisting)
	if _, err := j.config.Store.CreateTag(j.name); err != nil {
		return j.run.fail(err)
	}
	j.run.targetDone(TargetOutcome{Target: j.name})
	return j.run.done()
}

// DeleteTagJob removes a tag and all its assignments. Deleting a tag that
// does not exist is reported as a skip, not a failure.
type DeleteTagJob struct {
	*run
	config Config
	name   string
}

func NewDeleteTagJob(config Config, name string) *DeleteTagJob {
	return &DeleteTagJob{run: newRun("tag-delete", config.Bus), config: config, name: name}
}

func (j *DeleteTagJob) Kind() string {
	return "tag-delete"
}

func (j *DeleteTagJob) Run(ctx context.Context) (*Summary, error) {
	if err := j.config.Store.VerifySchemaVersion(); err != nil {
		return j.run.fail(err)
	}
	j.run.setState(StatePersisting)
	deleted, err := j.config.Store.DeleteTag(j.name)
	if err != nil {
		return j.run.fail(err)
	}
	if !deleted {
		j.run.targetDone(TargetOutcome{Target: j.name, Skipped: true, Reason: "tag does not exist"})
	} else {
		j.run.targetDone(TargetOutcome{Target: j.name})
	}
	return j.run.done()
}

// ApplyTagJob resolves its user targets and assigns the tag to each of them.
// The tag must already exist.
type ApplyTagJob struct {
	*run
	config  Config
	name    string
	targets []Target
}

func NewApplyTagJob(config Config, name string, targets []Target) *ApplyTagJob {
	return &ApplyTagJob{run: newRun("tag-apply", config.Bus), config: config, name: name, targets: targets}
}

func (j *ApplyTagJob) Kind() string {
	return "tag-apply"
}

func (j *ApplyTagJob) Run(ctx context.Context) (*Summary, error) {
	if err := j.config.Store.VerifySchemaVersion(); err != nil {
		return j.run.fail(err)
	}

	j.run.setState(StateResolving)
	resolver := NewResolver(j.config.Store, j.config.Client)
	resolution, err := resolver.ResolveUsers(ctx, j.targets, j.config.resolveMode())
	if err != nil {
		return j.run.fail(err)
	}
	j.run.summary.Totals.Resolved = len(resolution.UserIds)
	j.run.summary.Totals.Snapshots += resolution.Snapshots
	if err := j.run.noteUnresolved(resolution.Unresolved, j.config.AllowMissing); err != nil {
		return j.run.fail(err)
	}

	j.run.setState(StatePersisting)
	if err := j.config.Store.ApplyTag(j.name, resolution.UserIds); err != nil {
		return j.run.fail(err)
	}
	j.run.targetDone(TargetOutcome{Target: j.name})
	return j.run.done()
}
