package twitter

import "context"

/*

Pagers walk the cursor-paginated endpoints lazily, one page per Next call,
in the bufio.Scanner shape:

	pager := client.FollowerIdPager(ctx, userId)
	for pager.Next() {
		handle(pager.Ids())
	}
	if err := pager.Err(); err != nil { ... }

No page is fetched ahead of demand, so a caller that stops consuming stops
the network calls too. A fetch error ends the walk and is held on Err.

*/

// IDPager pages through an id-list endpoint (followers/ids, friends/ids).
type IDPager struct {
	ctx   context.Context
	fetch func(ctx context.Context, cursor int64) (*IDPage, error)

	cursor int64
	ids    []int64
	pages  int
	err    error
	done   bool
}

// FollowerIdPager walks the follower ids of userId.
func (c *Client) FollowerIdPager(ctx context.Context, userId int64) *IDPager {
	return &IDPager{
		ctx:    ctx,
		cursor: -1,
		fetch: func(ctx context.Context, cursor int64) (*IDPage, error) {
			return c.FollowerIds(ctx, userId, cursor)
		},
	}
}

// FriendIdPager walks the ids of the accounts userId follows.
func (c *Client) FriendIdPager(ctx context.Context, userId int64) *IDPager {
	return &IDPager{
		ctx:    ctx,
		cursor: -1,
		fetch: func(ctx context.Context, cursor int64) (*IDPage, error) {
			return c.FriendIds(ctx, userId, cursor)
		},
	}
}

// Next fetches the following page, reporting whether one is available.
func (p *IDPager) Next() bool {
	for {
		if p.done || p.err != nil {
			return false
		}
		page, err := p.fetch(p.ctx, p.cursor)
		if err != nil {
			p.err = err
			return false
		}
		p.pages++
		p.ids = page.Ids
		p.cursor = page.NextCursor
		if p.cursor == 0 {
			p.done = true
		}
		if len(p.ids) > 0 {
			return true
		}
		// Skip empty non-final pages, stop on an empty final one.
		if p.done {
			return false
		}
	}
}

// Ids returns the page fetched by the last successful Next.
func (p *IDPager) Ids() []int64 {
	return p.ids
}

// Pages returns how many pages have been fetched so far.
func (p *IDPager) Pages() int {
	return p.pages
}

func (p *IDPager) Err() error {
	return p.err
}

// MemberPager pages through a list's member user objects.
type MemberPager struct {
	ctx    context.Context
	client *Client
	listId int64

	cursor int64
	users  []User
	pages  int
	err    error
	done   bool
}

// ListMemberPager walks the current members of listId.
func (c *Client) ListMemberPager(ctx context.Context, listId int64) *MemberPager {
	return &MemberPager{
		ctx:    ctx,
		client: c,
		listId: listId,
		cursor: -1,
	}
}

func (p *MemberPager) Next() bool {
	for {
		if p.done || p.err != nil {
			return false
		}
		page, err := p.client.ListMembers(p.ctx, p.listId, p.cursor)
		if err != nil {
			p.err = err
			return false
		}
		p.pages++
		p.users = page.Users
		p.cursor = page.NextCursor
		if p.cursor == 0 {
			p.done = true
		}
		if len(p.users) > 0 {
			return true
		}
		if p.done {
			return false
		}
	}
}

// Users returns the page fetched by the last successful Next.
func (p *MemberPager) Users() []User {
	return p.users
}

// Ids returns the member ids of the current page.
func (p *MemberPager) Ids() []int64 {
	ids := make([]int64, 0, len(p.users))
	for _, user := range p.users {
		ids = append(ids, user.Id)
	}
	return ids
}

func (p *MemberPager) Pages() int {
	return p.pages
}

func (p *MemberPager) Err() error {
	return p.err
}

// TimelinePager pages through a user's tweets newest-first by descending
// max_id, bounded below by sinceId and optionally capped at maxTotal tweets.
type TimelinePager struct {
	ctx    context.Context
	client *Client
	userId int64

	sinceId   int64
	maxId     int64
	remaining int

	tweets []Tweet
	pages  int
	err    error
	done   bool
}

// UserTimelinePager walks userId's timeline. sinceId 0 means no floor;
// maxTotal <= 0 means no cap.
func (c *Client) UserTimelinePager(ctx context.Context, userId, sinceId int64, maxTotal int) *TimelinePager {
	remaining := maxTotal
	if remaining <= 0 {
		remaining = -1
	}
	return &TimelinePager{
		ctx:       ctx,
		client:    c,
		userId:    userId,
		sinceId:   sinceId,
		remaining: remaining,
	}
}

func (p *TimelinePager) Next() bool {
	if p.done || p.err != nil {
		return false
	}
	if p.remaining == 0 {
		p.done = true
		return false
	}

	count := timelinePageSize
	if p.remaining > 0 && p.remaining < count {
		count = p.remaining
	}

	tweets, err := p.client.UserTimeline(p.ctx, p.userId, p.sinceId, p.maxId, count)
	if err != nil {
		p.err = err
		return false
	}
	if len(tweets) == 0 {
		p.done = true
		return false
	}

	p.pages++
	p.tweets = tweets
	if p.remaining > 0 {
		if len(tweets) >= p.remaining {
			p.tweets = tweets[:p.remaining]
			p.remaining = 0
		} else {
			p.remaining -= len(tweets)
		}
	}

	// Pages descend through ids; the next page starts just below the lowest
	// id seen so far.
	lowest := tweets[len(tweets)-1].Id
	for _, tweet := range tweets {
		if tweet.Id < lowest {
			lowest = tweet.Id
		}
	}
	p.maxId = lowest - 1

	return true
}

// Tweets returns the page fetched by the last successful Next.
func (p *TimelinePager) Tweets() []Tweet {
	return p.tweets
}

func (p *TimelinePager) Pages() int {
	return p.pages
}

func (p *TimelinePager) Err() error {
	return p.err
}
