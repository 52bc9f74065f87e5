package job

import (
	"context"
	"strconv"
	"time"
)

// TweetsJob fetches each target's timeline and stores the tweets it finds.
// By default the walk stops at the newest tweet already stored for the
// target; OldTweets ignores that watermark and walks the whole retrievable
// timeline again.
type TweetsJob struct {
	*run
	config  Config
	targets []Target
}

func NewTweetsJob(config Config, targets []Target) *TweetsJob {
	return &TweetsJob{run: newRun("tweets", config.Bus), config: config, targets: targets}
}

func (j *TweetsJob) Kind() string {
	return "tweets"
}

func (j *TweetsJob) Run(ctx context.Context) (*Summary, error) {
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
		written, err := j.fetchOne(ctx, userId)
		if err != nil {
			if err := j.run.skipOrFail(j.config.BestEffort, target, err); err != nil {
				return j.run.fail(err)
			}
			continue
		}
		j.run.summary.Totals.Tweets += written
		j.run.targetDone(TargetOutcome{Target: target, TweetsInserted: written})
	}
	return j.run.done()
}

// fetchOne pages through one timeline, persisting page by page so a failure
// deep in a long timeline keeps the pages fetched before it.
func (j *TweetsJob) fetchOne(ctx context.Context, userId int64) (int, error) {
	var sinceId int64
	if !j.config.OldTweets {
		var err error
		sinceId, err = j.config.Store.MaxTweetId(userId)
		if err != nil {
			return 0, err
		}
	}

	asOf := time.Now().UTC()
	target := strconv.FormatInt(userId, 10)
	pager := j.config.Client.UserTimelinePager(ctx, userId, sinceId, j.config.MaxTweets)

	written := 0
	pageNo := 0
	j.run.setState(StateFetching)
	for pager.Next() {
		tweets := pager.Tweets()
		j.config.archivePage("tweets", target, asOf, pageNo, rawTweets(tweets))
		pageNo++

		j.run.setState(StatePersisting)
		n, err := j.config.Store.SaveTweets(tweets)
		if err != nil {
			return written, err
		}
		written += n
		j.run.setState(StateFetching)
	}
	return written, pager.Err()
}
