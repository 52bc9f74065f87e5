package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"

	"github.com/openflock/flockbase/job"
	Logger "github.com/openflock/flockbase/utils/log"
)

// DDOG_JOB_STATE_COUNTER counts finished jobs, tagged by kind and final state.
const DDOG_JOB_STATE_COUNTER = "flockbase.job_state"

// JobView is the api-visible state of one submitted job. While the job runs
// it is assembled from progress events; once it finishes the full summary
// replaces the incremental outcomes.
type JobView struct {
	JobId       string    `json:"job_id"`
	Kind        string    `json:"kind"`
	State       job.State `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Outcomes []job.TargetOutcome `json:"outcomes,omitempty"`
	Summary  *job.Summary        `json:"summary,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Registry tracks every job submitted to the daemon and runs them one at a
// time. Serializing execution keeps concurrent jobs from interleaving edge
// writes on the same subjects.
type Registry struct {
	mu    sync.Mutex
	views map[string]*JobView
	order []string

	queue  chan job.Job
	statsd *statsd.Client
}

// NewRegistry builds a registry with the given queue depth (non-positive
// picks the default). A nil statsd client disables metric reporting.
func NewRegistry(queueDepth int, statsd *statsd.Client) *Registry {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Registry{
		views:  make(map[string]*JobView),
		queue:  make(chan job.Job, queueDepth),
		statsd: statsd,
	}
}

// reportJobState sends one terminal job state to datadog. Monitoring only; a
// reporting failure never affects the job.
func (r *Registry) reportJobState(kind string, state job.State) {
	if r.statsd == nil {
		return
	}
	if err := r.statsd.Incr(DDOG_JOB_STATE_COUNTER, []string{kind, string(state)}, 1); err != nil {
		Logger.Log.Infoln("cannot report job state")
	}
}

// Submit queues a job for the worker. It fails instead of blocking when the
// queue is full, so a stalled worker surfaces as an error rather than a
// wedged http handler.
func (r *Registry) Submit(j job.Job) (*JobView, error) {
	r.mu.Lock()
	view := r.track(j.Id(), j.Kind())
	r.mu.Unlock()

	select {
	case r.queue <- j:
		return r.Snapshot(view.JobId), nil
	default:
		r.mu.Lock()
		view.State = job.StateFailed
		view.Error = "job queue is full"
		view.UpdatedAt = time.Now()
		r.mu.Unlock()
		r.reportJobState(j.Kind(), job.StateFailed)
		return nil, errors.New("job queue is full")
	}
}

// track returns the view for a job id, creating it on first sight. Callers
// hold the mutex.
func (r *Registry) track(id, kind string) *JobView {
	if view, ok := r.views[id]; ok {
		return view
	}
	view := &JobView{
		JobId:       id,
		Kind:        kind,
		State:       job.StatePending,
		SubmittedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.views[id] = view
	r.order = append(r.order, id)
	return view
}

// RunWorker consumes the queue until the context is canceled. Exactly one
// worker should run per registry.
func (r *Registry) RunWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.queue:
			summary, err := j.Run(ctx)
			r.mu.Lock()
			view := r.track(j.Id(), j.Kind())
			view.Summary = summary
			if summary != nil {
				view.State = summary.State
			}
			if err != nil {
				view.Error = err.Error()
			}
			// The summary carries the authoritative per-target outcomes.
			view.Outcomes = nil
			view.UpdatedAt = time.Now()
			r.mu.Unlock()
			if summary != nil {
				r.reportJobState(j.Kind(), summary.State)
			}
		}
	}
}

// ListenProgress subscribes to the progress topic and folds events into the
// views until the context is canceled.
func (r *Registry) ListenProgress(ctx context.Context, bus *gochannel.GoChannel) error {
	messages, err := bus.Subscribe(ctx, job.ProgressTopic)
	if err != nil {
		return errors.Wrap(err, "cannot subscribe to job progress")
	}
	go func() {
		for msg := range messages {
			msg.Ack()
			event := &job.ProgressEvent{}
			if err := json.Unmarshal(msg.Payload, event); err != nil {
				Logger.Log.Warnln("malformed progress event:", err)
				continue
			}
			r.apply(event)
		}
	}()
	return nil
}

func (r *Registry) apply(event *job.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Construction publishes the pending event before Submit registers the
	// job, so the view may be created from either side.
	view := r.track(event.JobId, event.Kind)
	if view.Summary == nil {
		view.State = event.State
		if event.Outcome != nil {
			view.Outcomes = append(view.Outcomes, *event.Outcome)
		}
		if event.Error != "" {
			view.Error = event.Error
		}
	}
	view.UpdatedAt = event.At
}

// Snapshot returns a copy of one job's view, or nil when the id is unknown.
func (r *Registry) Snapshot(id string) *JobView {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.views[id]
	if !ok {
		return nil
	}
	return copyView(view)
}

// List returns copies of every view, most recently submitted first.
func (r *Registry) List() []*JobView {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]*JobView, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		views = append(views, copyView(r.views[r.order[i]]))
	}
	return views
}

func copyView(view *JobView) *JobView {
	copied := *view
	if len(view.Outcomes) > 0 {
		copied.Outcomes = append([]job.TargetOutcome(nil), view.Outcomes...)
	}
	return &copied
}
