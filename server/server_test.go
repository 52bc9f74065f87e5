package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflock/flockbase/job"
	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
)

/*

The server tests exercise the http surface with jobs that stay off the
network (tags and validation failures), so a temporary database and the
in-process bus are all they need.

*/

func newTestServer(t *testing.T) (*Server, *store.Store) {
	gin.SetMode(gin.TestMode)

	db, _ := utils.CreateTempDB(t)
	st := store.NewStore(db)
	require.NoError(t, st.StampSchemaVersion())

	pool, err := twitter.NewCredentialPool([]*twitter.Credential{
		{Label: "main", BearerToken: "token-main"},
	})
	require.NoError(t, err)

	bus := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 100},
		watermill.NewStdLogger(false, false),
	)
	t.Cleanup(func() { bus.Close() })

	server := NewServer(job.Config{
		Store:  st,
		Client: twitter.NewClient(http.DefaultClient, pool),
		Bus:    bus,
	}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, server.Start(ctx))
	return server, st
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, request)
	return w
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeView(t *testing.T, body []byte) *JobView {
	view := &JobView{}
	require.NoError(t, json.Unmarshal(body, view))
	return view
}

// waitForSummary polls the registry until the worker has stored the job's
// final summary.
func waitForSummary(t *testing.T, registry *Registry, id string) *JobView {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if view := registry.Snapshot(id); view != nil && view.Summary != nil {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", id)
	return nil
}

func TestSubmitJobRunsToCompletion(t *testing.T) {
	server, st := newTestServer(t)
	router := server.NewRouter()

	w := postJSON(router, "/jobs", `{"kind": "tag-create", "tag": "crowd"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	accepted := decodeView(t, w.Body.Bytes())
	require.NotEmpty(t, accepted.JobId)
	assert.Equal(t, "tag-create", accepted.Kind)

	view := waitForSummary(t, server.Registry(), accepted.JobId)
	assert.Equal(t, job.StateDone, view.State)
	assert.Equal(t, job.StateDone, view.Summary.State)
	assert.Empty(t, view.Error)

	_, missing, err := st.TagMembers([]string{"crowd"})
	require.NoError(t, err)
	assert.Empty(t, missing)

	w = get(router, "/jobs/"+accepted.JobId)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.StateDone, decodeView(t, w.Body.Bytes()).State)
}

func TestSubmitJobValidation(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.NewRouter()

	w := postJSON(router, "/jobs", `{"targets": ["@alice"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(router, "/jobs", `{"kind": "frobnicate"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown job kind")

	w = postJSON(router, "/jobs", `{"kind": "followers", "targets": ["@alice", "999888777"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "mix")

	w = postJSON(router, "/jobs", `{"kind": "tag-apply", "targets": ["@alice"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "tag name")

	w = postJSON(router, "/jobs", `{"kind": "initialize"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cli only")
}

func TestGetJobUnknownId(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.NewRouter()

	w := get(router, "/jobs/no-such-job")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobsNewestFirst(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.NewRouter()

	first := decodeView(t, postJSON(router, "/jobs", `{"kind": "tag-create", "tag": "early"}`).Body.Bytes())
	second := decodeView(t, postJSON(router, "/jobs", `{"kind": "tag-create", "tag": "late"}`).Body.Bytes())
	waitForSummary(t, server.Registry(), first.JobId)
	waitForSummary(t, server.Registry(), second.JobId)

	w := get(router, "/jobs")
	require.Equal(t, http.StatusOK, w.Code)

	listing := struct {
		Jobs []*JobView `json:"jobs"`
	}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Jobs, 2)
	assert.Equal(t, second.JobId, listing.Jobs[0].JobId)
	assert.Equal(t, first.JobId, listing.Jobs[1].JobId)
}

func TestRequestOverridesReachTheJob(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.NewRouter()

	// Skip-mode resolution plus allow_missing turns an unknown screen name
	// into a recorded skip. Neither flag is the daemon default, so the skip
	// proves the request body reached the job config.
	w := postJSON(router, "/jobs", `{"kind": "tag-create", "tag": "crowd"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	created := decodeView(t, w.Body.Bytes())
	waitForSummary(t, server.Registry(), created.JobId)

	w = postJSON(router, "/jobs", `{
		"kind": "tag-apply",
		"tag": "crowd",
		"targets": ["@nobody"],
		"resolve_mode": "skip",
		"allow_missing": true
	}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	applied := decodeView(t, w.Body.Bytes())

	view := waitForSummary(t, server.Registry(), applied.JobId)
	assert.Equal(t, job.StateDone, view.State)
	require.Len(t, view.Summary.Skipped(), 1)
	assert.Contains(t, view.Summary.Skipped()[0].Reason, "no stored snapshot")

	w = postJSON(router, "/jobs", `{"kind": "tweets", "targets": ["1"], "resolve_mode": "sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "resolve mode")
}

func TestRateLimitHandlerReportsPool(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.NewRouter()

	w := get(router, "/ratelimit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"main"`)
}

func TestHealthcheckHandler(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.NewRouter()

	w := get(router, "/healthcheck")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")

	w = get(router, "/no-such-route")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "API not found")
}
