package twitter

import (
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// ParseCreatedAt parses the ruby-style created_at timestamp the remote puts
// on users, tweets and lists, normalized to UTC.
func ParseCreatedAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty created_at")
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "fail to parse created_at %q", value)
	}
	return t.UTC(), nil
}

// The structs below mirror the v1.1 JSON payloads the client consumes.
// Optional object fields are pointers so a missing field is distinguishable
// from a zero value when converting to persisted models.

type User struct {
	Id         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
	CreatedAt  string `json:"created_at"`

	Name           *string       `json:"name"`
	Protected      *bool         `json:"protected"`
	Verified       *bool         `json:"verified"`
	Description    *string       `json:"description"`
	Location       *string       `json:"location"`
	Url            *string       `json:"url"`
	FriendsCount   *int64        `json:"friends_count"`
	FollowersCount *int64        `json:"followers_count"`
	ListedCount    *int64        `json:"listed_count"`
	Entities       *UserEntities `json:"entities"`

	// Raw is the undecoded payload this struct was unmarshaled from.
	Raw json.RawMessage `json:"-"`
}

type UserEntities struct {
	Url *struct {
		Urls []UrlEntity `json:"urls"`
	} `json:"url"`
}

// ProfileUrl resolves the profile url with the fallback chain the entities
// payload requires: expanded form, then display form, then the short form,
// then the bare top-level field.
func (u *User) ProfileUrl() *string {
	if u.Entities != nil && u.Entities.Url != nil && len(u.Entities.Url.Urls) > 0 {
		ent := u.Entities.Url.Urls[0]
		if ent.ExpandedUrl != nil {
			return ent.ExpandedUrl
		}
		if ent.DisplayUrl != nil {
			return ent.DisplayUrl
		}
		if ent.Url != "" {
			url := ent.Url
			return &url
		}
	}
	return u.Url
}

type Tweet struct {
	Id        int64  `json:"id"`
	User      *User  `json:"user"`
	CreatedAt string `json:"created_at"`

	FullText *string `json:"full_text"`
	Text     *string `json:"text"`

	Lang          *string `json:"lang"`
	Source        *string `json:"source"`
	Truncated     *bool   `json:"truncated"`
	RetweetCount  *int64  `json:"retweet_count"`
	FavoriteCount *int64  `json:"favorite_count"`

	InReplyToStatusId *int64 `json:"in_reply_to_status_id"`
	InReplyToUserId   *int64 `json:"in_reply_to_user_id"`
	QuotedStatusId    *int64 `json:"quoted_status_id"`

	RetweetedStatus *Tweet `json:"retweeted_status"`
	QuotedStatus    *Tweet `json:"quoted_status"`

	Entities *TweetEntities `json:"entities"`

	Raw json.RawMessage `json:"-"`
}

// Content returns the text to persist. Native retweets come back with the
// toplevel text shortened, the original text lives on the retweeted status.
func (t *Tweet) Content() string {
	src := t
	if t.RetweetedStatus != nil {
		src = t.RetweetedStatus
	}
	if src.FullText != nil {
		return *src.FullText
	}
	if src.Text != nil {
		return *src.Text
	}
	return ""
}

// MentionedUserIds returns the ids of every user mentioned in the tweet.
func (t *Tweet) MentionedUserIds() []int64 {
	if t.Entities == nil {
		return nil
	}
	ids := make([]int64, 0, len(t.Entities.UserMentions))
	for _, m := range t.Entities.UserMentions {
		ids = append(ids, m.Id)
	}
	return ids
}

type TweetEntities struct {
	UserMentions []MentionEntity `json:"user_mentions"`
	Hashtags     []HashtagEntity `json:"hashtags"`
	Urls         []UrlEntity     `json:"urls"`
	Media        []MediaEntity   `json:"media"`
	Symbols      []SymbolEntity  `json:"symbols"`
}

// Indices is the half-open character span an entity occupies in the text,
// always two elements in well-formed payloads.

type MentionEntity struct {
	Id         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
	Indices    []int  `json:"indices"`
}

type HashtagEntity struct {
	Text    string `json:"text"`
	Indices []int  `json:"indices"`
}

type UrlEntity struct {
	Url         string  `json:"url"`
	ExpandedUrl *string `json:"expanded_url"`
	DisplayUrl  *string `json:"display_url"`
	Indices     []int   `json:"indices"`
}

type MediaEntity struct {
	Id       int64   `json:"id"`
	MediaUrl string  `json:"media_url_https"`
	Type     *string `json:"type"`
	Indices  []int   `json:"indices"`
}

type SymbolEntity struct {
	Text    string `json:"text"`
	Indices []int  `json:"indices"`
}

type List struct {
	Id        int64  `json:"id"`
	Slug      string `json:"slug"`
	User      *User  `json:"user"`
	CreatedAt string `json:"created_at"`

	Name            *string `json:"name"`
	FullName        *string `json:"full_name"`
	Uri             *string `json:"uri"`
	Description     *string `json:"description"`
	Mode            *string `json:"mode"`
	MemberCount     *int64  `json:"member_count"`
	SubscriberCount *int64  `json:"subscriber_count"`

	Raw json.RawMessage `json:"-"`
}

// IDPage is one page of a cursor-paginated id endpoint. NextCursor == 0
// marks the final page.
type IDPage struct {
	Ids            []int64 `json:"ids"`
	NextCursor     int64   `json:"next_cursor"`
	PreviousCursor int64   `json:"previous_cursor"`
}

// UserPage is one page of a cursor-paginated user-object endpoint.
type UserPage struct {
	Users          []User `json:"users"`
	NextCursor     int64  `json:"next_cursor"`
	PreviousCursor int64  `json:"previous_cursor"`
}

// RateLimitStatus is the per-credential window report from
// application/rate_limit_status.
type RateLimitStatus struct {
	Resources map[string]map[string]RateLimitWindow `json:"resources"`
}

type RateLimitWindow struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}
