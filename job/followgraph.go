package job

import (
	"context"
	"strconv"
	"time"

	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
)

// FollowJob fetches one direction of the follow graph for every target and
// reconciles the stored edge intervals against the fetched peer sets.
type FollowJob struct {
	*run
	config    Config
	direction store.Direction
	targets   []Target
}

// NewFollowJob builds a follow graph job. The direction picks between the
// follower and friend endpoints and decides how fetched peer ids orient
// around each target.
func NewFollowJob(config Config, targets []Target, direction store.Direction) *FollowJob {
	return &FollowJob{
		run:       newRun(direction.String(), config.Bus),
		config:    config,
		direction: direction,
		targets:   targets,
	}
}

func (j *FollowJob) Kind() string {
	return j.direction.String()
}

func (j *FollowJob) Run(ctx context.Context) (*Summary, error) {
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

	for _, userId := range resolution.UserIds {
		target := strconv.FormatInt(userId, 10)
		result, err := j.fetchOne(ctx, userId)
		if err != nil {
			if err := j.run.skipOrFail(j.config.BestEffort, target, err); err != nil {
				return j.run.fail(err)
			}
			continue
		}
		j.run.summary.Totals.EdgesInserted += result.Inserted
		j.run.summary.Totals.EdgesClosed += result.Closed
		j.run.targetDone(TargetOutcome{
			Target:        target,
			EdgesInserted: result.Inserted,
			EdgesClosed:   result.Closed,
		})
	}
	return j.run.done()
}

// fetchOne walks one target's id pages and reconciles them. With a BatchSize
// the pages stream straight into the reconciling transaction; otherwise the
// full peer set is collected first and reconciled in one pass.
func (j *FollowJob) fetchOne(ctx context.Context, userId int64) (*store.ReconcileResult, error) {
	asOf := time.Now().UTC()
	target := strconv.FormatInt(userId, 10)
	pager := j.pagerFor(ctx, userId)

	j.run.setState(StateFetching)
	if j.config.BatchSize > 0 {
		stream := newPageStream(pager, j.config.BatchSize, func(pageNo int, ids []int64) {
			j.config.archivePage(j.Kind(), target, asOf, pageNo, ids)
		})
		return j.config.Store.ReconcileFollowsPaged(userId, j.direction, stream, asOf)
	}

	var peers []int64
	pageNo := 0
	for pager.Next() {
		ids := pager.Ids()
		j.config.archivePage(j.Kind(), target, asOf, pageNo, ids)
		peers = append(peers, ids...)
		pageNo++
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}
	j.run.setState(StatePersisting)
	return j.config.Store.ReconcileFollows(userId, j.direction, peers, asOf)
}

func (j *FollowJob) pagerFor(ctx context.Context, userId int64) *twitter.IDPager {
	if j.direction == store.Followers {
		return j.config.Client.FollowerIdPager(ctx, userId)
	}
	return j.config.Client.FriendIdPager(ctx, userId)
}
