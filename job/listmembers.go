package job

import (
	"context"
	"time"
)

// ListMembersJob fetches the membership of every target list and reconciles
// the stored membership intervals against it. List metadata is refreshed as
// a side effect, and in whole batch mode every member's profile is
// snapshotted along the way.
type ListMembersJob struct {
	*run
	config  Config
	targets []Target
}

func NewListMembersJob(config Config, targets []Target) *ListMembersJob {
	return &ListMembersJob{run: newRun("list-members", config.Bus), config: config, targets: targets}
}

func (j *ListMembersJob) Kind() string {
	return "list-members"
}

func (j *ListMembersJob) Run(ctx context.Context) (*Summary, error) {
	if err := j.config.Store.VerifySchemaVersion(); err != nil {
		return j.run.fail(err)
	}

	resolver := NewResolver(j.config.Store, j.config.Client)
	for _, target := range j.targets {
		outcome, err := j.fetchOne(ctx, resolver, target.Value)
		if err != nil {
			if err := j.run.skipOrFail(j.config.BestEffort, target.Value, err); err != nil {
				return j.run.fail(err)
			}
			continue
		}
		j.run.summary.Totals.EdgesInserted += outcome.EdgesInserted
		j.run.summary.Totals.EdgesClosed += outcome.EdgesClosed
		j.run.summary.Totals.Snapshots += outcome.SnapshotsInserted
		j.run.targetDone(*outcome)
	}
	return j.run.done()
}

func (j *ListMembersJob) fetchOne(ctx context.Context, resolver *Resolver, value string) (*TargetOutcome, error) {
	j.run.setState(StateResolving)
	list, err := resolver.ResolveList(ctx, value)
	if err != nil {
		return nil, err
	}
	if err := j.config.Store.UpsertList(list); err != nil {
		return nil, err
	}

	asOf := time.Now().UTC()
	pager := j.config.Client.ListMemberPager(ctx, list.Id)

	j.run.setState(StateFetching)
	if j.config.BatchSize > 0 {
		// Snapshotting from inside the streaming transaction would deadlock
		// on its own user anchor upserts, so streaming reconciles ids only
		// and leaves profiles to the userinfo job.
		stream := newPageStream(pager, j.config.BatchSize, func(pageNo int, ids []int64) {
			j.config.archivePage(j.Kind(), value, asOf, pageNo, rawUsers(pager.Users()))
		})
		result, err := j.config.Store.ReconcileListMembersPaged(list.Id, stream, asOf)
		if err != nil {
			return nil, err
		}
		return &TargetOutcome{Target: value, EdgesInserted: result.Inserted, EdgesClosed: result.Closed}, nil
	}

	var members []int64
	snapshots := 0
	pageNo := 0
	for pager.Next() {
		users := pager.Users()
		j.config.archivePage(j.Kind(), value, asOf, pageNo, rawUsers(users))
		pageNo++

		n, err := j.config.Store.SaveUserSnapshots(users)
		if err != nil {
			return nil, err
		}
		snapshots += n
		members = append(members, pager.Ids()...)
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}

	j.run.setState(StatePersisting)
	result, err := j.config.Store.ReconcileListMembers(list.Id, members, asOf)
	if err != nil {
		return nil, err
	}
	return &TargetOutcome{
		Target:            value,
		EdgesInserted:     result.Inserted,
		EdgesClosed:       result.Closed,
		SnapshotsInserted: snapshots,
	}, nil
}
