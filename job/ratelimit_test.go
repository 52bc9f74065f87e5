package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rateLimitFixture = `{
	"rate_limit_context": {"access_token": "fixture"},
	"resources": {
		"followers": {
			"/followers/ids": {"limit": 15, "remaining": 14, "reset": 1636333200}
		},
		"users": {
			"/users/lookup": {"limit": 300, "remaining": 250, "reset": 1636333200},
			"/users/report_spam": {"limit": 15, "remaining": 15, "reset": 1636333200}
		},
		"statuses": {
			"/statuses/user_timeline": {"limit": 900, "remaining": 900, "reset": 1636333200}
		}
	}
}`

func TestRateLimitStatusJobReportsUsedEndpoints(t *testing.T) {
	api := newFakeAPI()
	api.rateLimits = rateLimitFixture
	config := newTestConfig(t, api)

	summary, err := NewRateLimitStatusJob(config, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, summary.State)
	require.Len(t, summary.RateLimits, 1)
	report := summary.RateLimits[0]
	assert.Equal(t, "main", report.Label)

	require.Contains(t, report.Windows, "/followers/ids")
	assert.Equal(t, 14, report.Windows["/followers/ids"].Remaining)
	assert.Contains(t, report.Windows, "/users/lookup")
	assert.Contains(t, report.Windows, "/statuses/user_timeline")

	// Endpoints this program never calls stay out of the default report.
	assert.NotContains(t, report.Windows, "/users/report_spam")
}

func TestRateLimitStatusJobFullKeepsEverything(t *testing.T) {
	api := newFakeAPI()
	api.rateLimits = rateLimitFixture
	config := newTestConfig(t, api)

	summary, err := NewRateLimitStatusJob(config, true).Run(context.Background())
	require.NoError(t, err)

	report := summary.RateLimits[0]
	assert.Contains(t, report.Windows, "/users/report_spam")
}

func TestRateLimitStatusJobCoversEveryCredential(t *testing.T) {
	api := newFakeAPI()
	api.rateLimits = rateLimitFixture
	config := newTestConfig(t, api, "main", "spare")

	summary, err := NewRateLimitStatusJob(config, false).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.RateLimits, 2)
	assert.Equal(t, "main", summary.RateLimits[0].Label)
	assert.Equal(t, "spare", summary.RateLimits[1].Label)
	assert.Equal(t, 2, api.callCount("/application/rate_limit_status.json"))
}
