package job

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/openflock/flockbase/archive"
	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
	"github.com/stretchr/testify/require"
)

/*

The job tests run against a real temporary database and an in-process
rendition of the remote API, so every layer under the job (resolver, client,
credential pool, store) is exercised for real rather than mocked out.

*/

// fakeAPI serves the endpoints jobs touch from in-memory fixtures. Cursors
// are plain offsets into the fixture slices; the client treats them as
// opaque values, exactly like real cursors.
type fakeAPI struct {
	mu sync.Mutex

	users     map[int64]map[string]interface{}
	byName    map[string]int64
	followers map[int64][]int64
	friends   map[int64][]int64
	timelines map[int64][]map[string]interface{}
	lists     map[int64]map[string]interface{}
	members   map[int64][]int64

	// fail maps a subject id to the http status its paged endpoints return.
	fail map[int64]int

	rateLimits string

	pageSize int
	calls    map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users:     map[int64]map[string]interface{}{},
		byName:    map[string]int64{},
		followers: map[int64][]int64{},
		friends:   map[int64][]int64{},
		timelines: map[int64][]map[string]interface{}{},
		lists:     map[int64]map[string]interface{}{},
		members:   map[int64][]int64{},
		fail:      map[int64]int{},
		pageSize:  2,
		calls:     map[string]int{},
	}
}

func (api *fakeAPI) addUser(id int64, screenName string) {
	api.users[id] = map[string]interface{}{
		"id":          id,
		"screen_name": screenName,
		"name":        "Fake " + screenName,
		"created_at":  "Mon Nov 08 10:00:00 +0000 2021",
	}
	api.byName[strings.ToLower(screenName)] = id
}

func (api *fakeAPI) addList(id, ownerId int64, slug string, memberIds ...int64) {
	owner := api.users[ownerId]
	api.lists[id] = map[string]interface{}{
		"id":           id,
		"slug":         slug,
		"name":         slug,
		"full_name":    "@" + owner["screen_name"].(string) + "/" + slug,
		"member_count": len(memberIds),
		"user":         owner,
		"created_at":   "Mon Nov 08 09:00:00 +0000 2021",
	}
	api.members[id] = memberIds
}

func (api *fakeAPI) addTweet(userId, tweetId int64, text string) {
	api.timelines[userId] = append(api.timelines[userId], map[string]interface{}{
		"id":         tweetId,
		"full_text":  text,
		"created_at": "Mon Nov 08 12:00:00 +0000 2021",
		"user":       api.users[userId],
	})
}

func (api *fakeAPI) callCount(path string) int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.calls[path]
}

func (api *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.calls[r.URL.Path]++

	switch r.URL.Path {
	case "/users/lookup.json":
		api.serveLookup(w, r)
	case "/followers/ids.json":
		api.serveIds(w, r, api.followers)
	case "/friends/ids.json":
		api.serveIds(w, r, api.friends)
	case "/statuses/user_timeline.json":
		api.serveTimeline(w, r)
	case "/lists/show.json":
		api.serveList(w, r)
	case "/lists/members.json":
		api.serveMembers(w, r)
	case "/application/rate_limit_status.json":
		fmt.Fprint(w, api.rateLimits)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[{"code":34,"message":"Sorry, that page does not exist"}]}`)
	}
}

func (api *fakeAPI) serveLookup(w http.ResponseWriter, r *http.Request) {
	out := []map[string]interface{}{}
	for _, part := range splitParam(r, "user_id") {
		id, _ := strconv.ParseInt(part, 10, 64)
		if user, ok := api.users[id]; ok {
			out = append(out, user)
		}
	}
	for _, part := range splitParam(r, "screen_name") {
		if id, ok := api.byName[strings.ToLower(part)]; ok {
			out = append(out, api.users[id])
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[{"code":17,"message":"No user matches for specified terms."}]}`)
		return
	}
	writeJSON(w, out)
}

func (api *fakeAPI) serveIds(w http.ResponseWriter, r *http.Request, graph map[int64][]int64) {
	userId, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if api.writeFailure(w, userId) {
		return
	}
	ids := graph[userId]
	offset, end, next := api.pageBounds(r, len(ids))
	writeJSON(w, map[string]interface{}{
		"ids":             ids[offset:end],
		"next_cursor":     next,
		"previous_cursor": 0,
	})
}

func (api *fakeAPI) serveMembers(w http.ResponseWriter, r *http.Request) {
	listId, _ := strconv.ParseInt(r.URL.Query().Get("list_id"), 10, 64)
	if api.writeFailure(w, listId) {
		return
	}
	memberIds := api.members[listId]
	offset, end, next := api.pageBounds(r, len(memberIds))
	users := []map[string]interface{}{}
	for _, id := range memberIds[offset:end] {
		users = append(users, api.users[id])
	}
	writeJSON(w, map[string]interface{}{
		"users":           users,
		"next_cursor":     next,
		"previous_cursor": 0,
	})
}

func (api *fakeAPI) serveTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userId, _ := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if api.writeFailure(w, userId) {
		return
	}
	sinceId, _ := strconv.ParseInt(q.Get("since_id"), 10, 64)
	maxId, _ := strconv.ParseInt(q.Get("max_id"), 10, 64)
	count, _ := strconv.Atoi(q.Get("count"))

	tweets := append([]map[string]interface{}{}, api.timelines[userId]...)
	sort.Slice(tweets, func(i, j int) bool {
		return tweets[i]["id"].(int64) > tweets[j]["id"].(int64)
	})

	out := []map[string]interface{}{}
	for _, tweet := range tweets {
		id := tweet["id"].(int64)
		if id <= sinceId || (maxId > 0 && id > maxId) {
			continue
		}
		out = append(out, tweet)
		if count > 0 && len(out) == count {
			break
		}
	}
	writeJSON(w, out)
}

func (api *fakeAPI) serveList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := q.Get("list_id"); raw != "" {
		id, _ := strconv.ParseInt(raw, 10, 64)
		if list, ok := api.lists[id]; ok {
			writeJSON(w, list)
			return
		}
	} else {
		owner, slug := q.Get("owner_screen_name"), q.Get("slug")
		for _, list := range api.lists {
			listOwner := list["user"].(map[string]interface{})
			if list["slug"] == slug && strings.EqualFold(listOwner["screen_name"].(string), owner) {
				writeJSON(w, list)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `{"errors":[{"code":34,"message":"Sorry, that page does not exist"}]}`)
}

// pageBounds resolves the request cursor against a fixture of total items.
func (api *fakeAPI) pageBounds(r *http.Request, total int) (offset, end int, next int64) {
	if cursor, _ := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64); cursor > 0 {
		offset = int(cursor)
	}
	if offset > total {
		offset = total
	}
	end = offset + api.pageSize
	if end >= total {
		return offset, total, 0
	}
	return offset, end, int64(end)
}

func (api *fakeAPI) writeFailure(w http.ResponseWriter, subjectId int64) bool {
	status, ok := api.fail[subjectId]
	if !ok {
		return false
	}
	w.WriteHeader(status)
	switch status {
	case http.StatusNotFound:
		fmt.Fprint(w, `{"errors":[{"code":50,"message":"User not found."}]}`)
	case http.StatusForbidden:
		fmt.Fprint(w, `{"errors":[{"code":63,"message":"User has been suspended."}]}`)
	default:
		fmt.Fprint(w, `{"error":"Not authorized."}`)
	}
	return true
}

func splitParam(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// newTestConfig wires a job config against a fresh temporary database and
// an httptest server running the fake API.
func newTestConfig(t *testing.T, api *fakeAPI, labels ...string) Config {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	if len(labels) == 0 {
		labels = []string{"main"}
	}
	creds := make([]*twitter.Credential, 0, len(labels))
	for _, label := range labels {
		creds = append(creds, &twitter.Credential{Label: label, BearerToken: "token-" + label})
	}
	pool, err := twitter.NewCredentialPool(creds)
	require.NoError(t, err)
	client := twitter.NewClient(server.Client(), pool).SetBaseUrl(server.URL).SetMaxRetries(2)

	db, _ := utils.CreateTempDB(t)
	st := store.NewStore(db)
	require.NoError(t, st.StampSchemaVersion())

	return Config{Store: st, Client: client, Archive: archive.NewFakeStore()}
}

func fakeArchive(config Config) *archive.FakeStore {
	return config.Archive.(*archive.FakeStore)
}
