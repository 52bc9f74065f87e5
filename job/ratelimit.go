package job

import (
	"context"
	"strings"

	"github.com/openflock/flockbase/twitter"
)

// usedEndpoints are the rate-limit buckets this program's fetch paths
// consume, which is what the status report shows by default.
var usedEndpoints = []twitter.EndpointClass{
	twitter.EndpointUsersLookup,
	twitter.EndpointFollowerIds,
	twitter.EndpointFriendIds,
	twitter.EndpointUserTimeline,
	twitter.EndpointListsShow,
	twitter.EndpointListMembers,
	twitter.EndpointRateLimit,
}

// RateLimitReport is one credential's remaining capacity per endpoint.
type RateLimitReport struct {
	Label   string                             `json:"label"`
	Windows map[string]twitter.RateLimitWindow `json:"windows"`
}

// RateLimitStatusJob asks the remote for every credential's current rate
// limit windows. Full widens the report from the endpoints this program
// uses to everything the remote returns.
type RateLimitStatusJob struct {
	*run
	config Config
	full   bool
}

func NewRateLimitStatusJob(config Config, full bool) *RateLimitStatusJob {
	return &RateLimitStatusJob{run: newRun("ratelimit", config.Bus), config: config, full: full}
}

func (j *RateLimitStatusJob) Kind() string {
	return "ratelimit"
}

func (j *RateLimitStatusJob) Run(ctx context.Context) (*Summary, error) {
	j.run.setState(StateFetching)
	for _, cred := range j.config.Client.Pool().Credentials() {
		status, err := j.config.Client.RateLimitStatus(ctx, cred)
		if err != nil {
			if err := j.run.skipOrFail(j.config.BestEffort, cred.Label, err); err != nil {
				return j.run.fail(err)
			}
			continue
		}
		j.run.summary.RateLimits = append(j.run.summary.RateLimits, buildReport(cred.Label, status, j.full))
		j.run.targetDone(TargetOutcome{Target: cred.Label})
	}
	return j.run.done()
}

func buildReport(label string, status *twitter.RateLimitStatus, full bool) RateLimitReport {
	report := RateLimitReport{Label: label, Windows: map[string]twitter.RateLimitWindow{}}
	if full {
		for _, windows := range status.Resources {
			for path, window := range windows {
				report.Windows[path] = window
			}
		}
		return report
	}
	for _, class := range usedEndpoints {
		path := string(class)
		family := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
		if window, ok := status.Resources[family][path]; ok {
			report.Windows[path] = window
		}
	}
	return report
}
