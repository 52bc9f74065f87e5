package twitter

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/openflock/flockbase/utils"
	"github.com/pkg/errors"
)

const (
	DefaultBaseUrl = `https://api.twitter.com/1.1`

	// lookupBatchSize is the max users per lookup call the remote accepts.
	lookupBatchSize = 100
	// idPageSize is the max ids per followers/ids or friends/ids page.
	idPageSize = 5000
	// memberPageSize is the max users per lists/members page.
	memberPageSize = 5000
	// timelinePageSize is the max tweets per user_timeline page.
	timelinePageSize = 200

	defaultMaxRetries = 3
)

// Client wraps the remote REST API. Every call acquires a credential from
// the pool for the endpoint's rate-limit class, retries transient failures
// with exponential backoff, fails over to the next credential on rate
// limits, and returns terminal classifications as typed errors.
type Client struct {
	// HttpClient that is used to actually make request
	client *http.Client

	// pool supplies a usable credential per call
	pool *CredentialPool

	baseUrl    string
	maxRetries int
}

func NewClient(client *http.Client, pool *CredentialPool) *Client {
	return &Client{
		client:     client,
		pool:       pool,
		baseUrl:    DefaultBaseUrl,
		maxRetries: defaultMaxRetries,
	}
}

// SetBaseUrl points the client at a different API host, mainly for tests.
func (c *Client) SetBaseUrl(baseUrl string) *Client {
	c.baseUrl = strings.TrimSuffix(baseUrl, "/")
	return c
}

// SetMaxRetries bounds the transient retry loop.
func (c *Client) SetMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// Pool exposes the credential pool for status reporting.
func (c *Client) Pool() *CredentialPool {
	return c.pool
}

// get performs one logical API call: acquire credential, request, classify,
// and loop on retryable outcomes. Rate-limited credentials are marked and
// the loop fails over to the next one without sleeping; only transient
// failures back off, up to maxRetries attempts.
func (c *Client) get(ctx context.Context, class EndpointClass, path string, params url.Values) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0

	transientAttempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cred, err := c.pool.Acquire(class)
		if err != nil {
			return nil, err
		}

		body, err := c.doOnce(ctx, cred, class, path, params)
		if err == nil {
			return body, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			// Context cancellation, surfaced as-is.
			return nil, err
		}

		switch {
		case apiErr.Kind == KindRateLimited:
			c.pool.MarkRateLimited(cred, class, apiErr.Reset)
		case apiErr.Retryable():
			transientAttempts++
			if transientAttempts >= c.maxRetries {
				return nil, apiErr
			}
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
		default:
			return nil, apiErr
		}
	}
}

// doOnce issues a single request with the given credential and returns the
// body on success or a classified error.
func (c *Client) doOnce(ctx context.Context, cred *Credential, class EndpointClass, path string, params url.Values) ([]byte, error) {
	uri := c.baseUrl + path
	if len(params) > 0 {
		uri = uri + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Message: err.Error()}
	}
	// add authorization header to the req
	req.Header.Add("Authorization", "Bearer "+cred.BearerToken)

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Kind: KindTransient, Message: "read failure: " + err.Error()}
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransient, StatusCode: res.StatusCode, Message: "read failure: " + err.Error()}
	}

	remaining, reset := parseRateHeaders(res.Header)

	if res.StatusCode == http.StatusOK {
		if remaining >= 0 {
			c.pool.Observe(cred, class, remaining, reset)
		}
		return body, nil
	}

	return nil, classifyResponse(res.StatusCode, body, reset)
}

// parseRateHeaders pulls the remaining-call count and window reset out of
// the rate headers. remaining is -1 when the header is absent.
func parseRateHeaders(header http.Header) (int, time.Time) {
	remaining := -1
	if v := header.Get("x-rate-limit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			remaining = n
		}
	}
	var reset time.Time
	if v := header.Get("x-rate-limit-reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			reset = time.Unix(sec, 0)
		}
	}
	return remaining, reset
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LookupUsersByIds hydrates full user objects for the given ids, batching
// at the remote's per-call maximum. Ids the remote no longer knows are
// simply absent from the result.
func (c *Client) LookupUsersByIds(ctx context.Context, ids []int64) ([]User, error) {
	var users []User
	for _, chunk := range utils.ChunkInt64s(ids, lookupBatchSize) {
		joined := make([]string, 0, len(chunk))
		for _, id := range chunk {
			joined = append(joined, strconv.FormatInt(id, 10))
		}
		params := url.Values{}
		params.Set("user_id", strings.Join(joined, ","))
		chunkUsers, err := c.lookupChunk(ctx, params)
		if err != nil {
			return nil, err
		}
		users = append(users, chunkUsers...)
	}
	return users, nil
}

// LookupUsersByScreenNames is LookupUsersByIds for screen names.
func (c *Client) LookupUsersByScreenNames(ctx context.Context, screenNames []string) ([]User, error) {
	var users []User
	for _, chunk := range utils.ChunkStrings(screenNames, lookupBatchSize) {
		params := url.Values{}
		params.Set("screen_name", strings.Join(chunk, ","))
		chunkUsers, err := c.lookupChunk(ctx, params)
		if err != nil {
			return nil, err
		}
		users = append(users, chunkUsers...)
	}
	return users, nil
}

func (c *Client) lookupChunk(ctx context.Context, params url.Values) ([]User, error) {
	params.Set("include_entities", "true")
	body, err := c.get(ctx, EndpointUsersLookup, "/users/lookup.json", params)
	if err != nil {
		// A chunk where every single user is gone comes back as a not-found
		// error rather than an empty array.
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodeUsers(body)
}

// FollowerIds fetches one page of follower ids for userId. Cursor -1 starts
// the walk, NextCursor 0 in the returned page ends it.
func (c *Client) FollowerIds(ctx context.Context, userId int64, cursor int64) (*IDPage, error) {
	return c.idPage(ctx, EndpointFollowerIds, "/followers/ids.json", userId, cursor)
}

// FriendIds fetches one page of friend ids (accounts userId follows).
func (c *Client) FriendIds(ctx context.Context, userId int64, cursor int64) (*IDPage, error) {
	return c.idPage(ctx, EndpointFriendIds, "/friends/ids.json", userId, cursor)
}

func (c *Client) idPage(ctx context.Context, class EndpointClass, path string, userId int64, cursor int64) (*IDPage, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userId, 10))
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	params.Set("count", strconv.Itoa(idPageSize))
	params.Set("stringify_ids", "false")

	body, err := c.get(ctx, class, path, params)
	if err != nil {
		return nil, err
	}
	page := &IDPage{}
	if err := json.Unmarshal(body, page); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: "malformed id page: " + err.Error()}
	}
	return page, nil
}

// UserTimeline fetches up to count tweets authored by userId, newest first.
// sinceId > 0 sets the exclusive floor, maxId > 0 the inclusive ceiling.
func (c *Client) UserTimeline(ctx context.Context, userId, sinceId, maxId int64, count int) ([]Tweet, error) {
	if count <= 0 || count > timelinePageSize {
		count = timelinePageSize
	}
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userId, 10))
	params.Set("count", strconv.Itoa(count))
	params.Set("tweet_mode", "extended")
	params.Set("include_rts", "true")
	if sinceId > 0 {
		params.Set("since_id", strconv.FormatInt(sinceId, 10))
	}
	if maxId > 0 {
		params.Set("max_id", strconv.FormatInt(maxId, 10))
	}

	body, err := c.get(ctx, EndpointUserTimeline, "/statuses/user_timeline.json", params)
	if err != nil {
		return nil, err
	}
	return decodeTweets(body)
}

// GetListById looks up a list by its numeric id.
func (c *Client) GetListById(ctx context.Context, listId int64) (*List, error) {
	params := url.Values{}
	params.Set("list_id", strconv.FormatInt(listId, 10))
	return c.getList(ctx, params)
}

// GetListBySlug looks up a list by its owner screen name and slug.
func (c *Client) GetListBySlug(ctx context.Context, ownerScreenName, slug string) (*List, error) {
	params := url.Values{}
	params.Set("owner_screen_name", ownerScreenName)
	params.Set("slug", slug)
	return c.getList(ctx, params)
}

func (c *Client) getList(ctx context.Context, params url.Values) (*List, error) {
	body, err := c.get(ctx, EndpointListsShow, "/lists/show.json", params)
	if err != nil {
		return nil, err
	}
	list := &List{}
	if err := json.Unmarshal(body, list); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: "malformed list: " + err.Error()}
	}
	list.Raw = json.RawMessage(body)
	return list, nil
}

// ListMembers fetches one page of member user objects for listId.
func (c *Client) ListMembers(ctx context.Context, listId int64, cursor int64) (*UserPage, error) {
	params := url.Values{}
	params.Set("list_id", strconv.FormatInt(listId, 10))
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	params.Set("count", strconv.Itoa(memberPageSize))
	params.Set("include_entities", "true")
	params.Set("skip_status", "true")

	body, err := c.get(ctx, EndpointListMembers, "/lists/members.json", params)
	if err != nil {
		return nil, err
	}
	return decodeUserPage(body)
}

// RateLimitStatus reports the remote's view of the rate windows for one
// specific credential, bypassing pool rotation.
func (c *Client) RateLimitStatus(ctx context.Context, cred *Credential) (*RateLimitStatus, error) {
	params := url.Values{}
	params.Set("resources", "users,followers,friends,statuses,lists,application")

	body, err := c.doOnce(ctx, cred, EndpointRateLimit, "/application/rate_limit_status.json", params)
	if err != nil {
		return nil, err
	}
	status := &RateLimitStatus{}
	if err := json.Unmarshal(body, status); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: "malformed rate limit status: " + err.Error()}
	}
	return status, nil
}

// decodeUsers unmarshals an array of user objects, retaining each object's
// raw payload for persistence.
func decodeUsers(body []byte) ([]User, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: "malformed user list: " + err.Error()}
	}
	users := make([]User, 0, len(raws))
	for _, raw := range raws {
		var user User
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, &APIError{Kind: KindTransient, Message: "malformed user: " + err.Error()}
		}
		user.Raw = raw
		users = append(users, user)
	}
	return users, nil
}

func decodeTweets(body []byte) ([]Tweet, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: "malformed tweet list: " + err.Error()}
	}
	tweets := make([]Tweet, 0, len(raws))
	for _, raw := range raws {
		var tweet Tweet
		if err := json.Unmarshal(raw, &tweet); err != nil {
			return nil, &APIError{Kind: KindTransient, Message: "malformed tweet: " + err.Error()}
		}
		tweet.Raw = raw
		tweets = append(tweets, tweet)
	}
	return tweets, nil
}

func decodeUserPage(body []byte) (*UserPage, error) {
	var envelope struct {
		Users          []json.RawMessage `json:"users"`
		NextCursor     int64             `json:"next_cursor"`
		PreviousCursor int64             `json:"previous_cursor"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: "malformed user page: " + err.Error()}
	}
	page := &UserPage{
		NextCursor:     envelope.NextCursor,
		PreviousCursor: envelope.PreviousCursor,
		Users:          make([]User, 0, len(envelope.Users)),
	}
	for _, raw := range envelope.Users {
		var user User
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, &APIError{Kind: KindTransient, Message: "malformed user: " + err.Error()}
		}
		user.Raw = raw
		page.Users = append(page.Users, user)
	}
	return page, nil
}

