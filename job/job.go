package job

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/openflock/flockbase/archive"
	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
	Logger "github.com/openflock/flockbase/utils/log"
	"github.com/pkg/errors"
)

// State is a job's position in its lifecycle. Fetching and persisting
// alternate per target; failed is reachable from any non-terminal state.
type State string

const (
	StatePending    State = "pending"
	StateResolving  State = "resolving"
	StateFetching   State = "fetching"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Job is one unit of work against the API and the database. The id is
// assigned at construction so callers can track the job before it runs.
type Job interface {
	Id() string
	Kind() string
	Run(ctx context.Context) (*Summary, error)
}

// Config carries the dependencies and policy flags for one job run. Jobs
// hold no global state; everything they touch comes in here.
type Config struct {
	Store  *store.Store
	Client *twitter.Client

	// Archive receives each fetched page's raw JSON when set. Best effort;
	// archive failures never fail a job.
	Archive archive.Store

	// Bus receives progress events when set. CLI runs leave it nil.
	Bus *gochannel.GoChannel

	// BestEffort skips a target whose fetch fails terminally instead of
	// aborting the job.
	BestEffort bool
	// AllowMissing tolerates targets the resolver cannot map to user ids.
	AllowMissing bool
	// ResolveMode picks how user targets are resolved. Empty means
	// ResolveFetch.
	ResolveMode ResolveMode

	// BatchSize switches follow and membership reconciliation to the
	// bounded-memory streaming strategy when positive.
	BatchSize int
	// MaxTweets caps tweets fetched per target, 0 means no cap.
	MaxTweets int
	// OldTweets refetches a timeline from the beginning instead of starting
	// past the newest persisted tweet.
	OldTweets bool

	// Yes confirms destructive operations. Only the initialize job reads it.
	Yes bool
}

func (c Config) resolveMode() ResolveMode {
	if c.ResolveMode == "" {
		return ResolveFetch
	}
	return c.ResolveMode
}

// TargetOutcome is the per-target tally in a job summary.
type TargetOutcome struct {
	Target  string `json:"target"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`

	SnapshotsInserted int `json:"snapshots_inserted,omitempty"`
	EdgesInserted     int `json:"edges_inserted,omitempty"`
	EdgesClosed       int `json:"edges_closed,omitempty"`
	TweetsInserted    int `json:"tweets_inserted,omitempty"`
}

// Totals aggregates tallies across every target of a run.
type Totals struct {
	Resolved      int `json:"resolved,omitempty"`
	Snapshots     int `json:"snapshots,omitempty"`
	EdgesInserted int `json:"edges_inserted,omitempty"`
	EdgesClosed   int `json:"edges_closed,omitempty"`
	Tweets        int `json:"tweets,omitempty"`
}

// Summary is the final report of a job run.
type Summary struct {
	JobId      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`

	Totals  Totals          `json:"totals"`
	Targets []TargetOutcome `json:"targets,omitempty"`

	// RateLimits is populated by the rate limit status job only.
	RateLimits []RateLimitReport `json:"rate_limits,omitempty"`
}

// Skipped returns the targets the run passed over, with reasons.
func (s *Summary) Skipped() []TargetOutcome {
	var skipped []TargetOutcome
	for _, outcome := range s.Targets {
		if outcome.Skipped {
			skipped = append(skipped, outcome)
		}
	}
	return skipped
}

// run is the lifecycle bookkeeping shared by every job implementation: it
// owns the summary and mirrors each transition onto the progress bus.
type run struct {
	summary *Summary
	bus     *gochannel.GoChannel
}

func newRun(kind string, bus *gochannel.GoChannel) *run {
	r := &run{
		summary: &Summary{
			JobId:     uuid.NewString(),
			Kind:      kind,
			State:     StatePending,
			StartedAt: time.Now(),
		},
		bus: bus,
	}
	publishProgress(bus, &ProgressEvent{JobId: r.summary.JobId, Kind: kind, State: StatePending})
	return r
}

func (r *run) Id() string {
	return r.summary.JobId
}

func (r *run) setState(state State) {
	r.summary.State = state
	publishProgress(r.bus, &ProgressEvent{
		JobId: r.summary.JobId,
		Kind:  r.summary.Kind,
		State: state,
	})
}

func (r *run) targetDone(outcome TargetOutcome) {
	r.summary.Targets = append(r.summary.Targets, outcome)
	publishProgress(r.bus, &ProgressEvent{
		JobId:   r.summary.JobId,
		Kind:    r.summary.Kind,
		State:   r.summary.State,
		Target:  outcome.Target,
		Outcome: &outcome,
	})
}

func (r *run) fail(err error) (*Summary, error) {
	r.summary.State = StateFailed
	r.summary.Error = err.Error()
	r.summary.FinishedAt = time.Now()
	publishProgress(r.bus, &ProgressEvent{
		JobId: r.summary.JobId,
		Kind:  r.summary.Kind,
		State: StateFailed,
		Error: err.Error(),
	})
	return r.summary, err
}

func (r *run) done() (*Summary, error) {
	r.summary.State = StateDone
	r.summary.FinishedAt = time.Now()
	publishProgress(r.bus, &ProgressEvent{
		JobId: r.summary.JobId,
		Kind:  r.summary.Kind,
		State: StateDone,
	})
	return r.summary, nil
}

// skipOrFail applies the failure policy to one target's terminal error.
// Returns nil after recording the skip; returns the error when the job must
// abort. Capacity exhaustion and persistence failures are never skipped:
// the first means no further target can make progress, the second points at
// the database rather than the target.
func (r *run) skipOrFail(bestEffort bool, target string, err error) error {
	if bestEffort && skippable(err) {
		Logger.Log.WithField("target", target).Warnln("skipping target:", err)
		r.targetDone(TargetOutcome{Target: target, Skipped: true, Reason: err.Error()})
		return nil
	}
	return errors.Wrapf(err, "target %s", target)
}

// noteUnresolved records unresolved targets as skipped outcomes. When missing
// targets are not allowed the run must abort, and the returned error says so.
func (r *run) noteUnresolved(unresolved []UnresolvedTarget, allowMissing bool) error {
	for _, u := range unresolved {
		Logger.Log.WithField("target", u.Target.String()).Warnln("target did not resolve:", u.Reason)
		r.targetDone(TargetOutcome{Target: u.Target.String(), Skipped: true, Reason: u.Reason})
	}
	if len(unresolved) > 0 && !allowMissing {
		return errors.Errorf("%d targets did not resolve", len(unresolved))
	}
	return nil
}

// skippable reports whether a target failure is recoverable under the best
// effort policy.
func skippable(err error) bool {
	if twitter.IsCapacityError(err) || store.IsPersistenceError(err) {
		return false
	}
	var apiErr *twitter.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case twitter.KindNotFound, twitter.KindSuspended, twitter.KindProtected, twitter.KindPermissionDenied:
		return true
	case twitter.KindTransient:
		// A transient error that reached us exhausted its retries, which
		// demotes it to a target error.
		return true
	}
	return false
}

// ConfigError is a problem with the job's own inputs, detected before any
// network call and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// IsConfigError matches configuration errors from this package and from the
// twitter client.
func IsConfigError(err error) bool {
	var jobErr *ConfigError
	if errors.As(err, &jobErr) {
		return true
	}
	return twitter.IsConfigError(err)
}
