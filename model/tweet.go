package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Tweet is one fetched status, keyed by the platform-assigned id.

UserId: the author
Content: the full text. For native retweets the toplevel text comes back
truncated, so the retweeted status's full text is stored instead.
PostedAt: the status's own creation time on the platform

RetweetedStatusId / InReplyToStatusId / InReplyToUserId / QuotedStatusId are
plain ids, not foreign keys: the referenced tweets have not necessarily been
fetched.

Tweets are immutable once inserted. A re-fetch of an already persisted id is
a no-op, child entity rows included.

*/
type Tweet struct {
	Id     int64 `gorm:"primaryKey;autoIncrement:false"`
	UserId int64 `gorm:"index;not null"`

	Content  string    `gorm:"not null"`
	PostedAt time.Time `gorm:"not null"`

	Lang          *string
	Source        *string
	Truncated     *bool
	RetweetCount  *int64
	FavoriteCount *int64

	RetweetedStatusId   *int64
	InReplyToStatusId   *int64
	InReplyToUserId     *int64
	QuotedStatusId      *int64
	QuotedStatusContent *string

	ApiResponse datatypes.JSON `gorm:"not null"`

	Auditable
}

// The entity tables below normalize the "entities" section of a tweet
// payload. Each row records the half-open [StartIndex, EndIndex) character
// span the entity occupies in the tweet text.

type TweetMention struct {
	Id      int64 `gorm:"primaryKey"`
	TweetId int64 `gorm:"index;not null"`
	UserId  int64 `gorm:"index;not null"`

	StartIndex int
	EndIndex   int
}

type TweetHashtag struct {
	Id      int64 `gorm:"primaryKey"`
	TweetId int64 `gorm:"index;not null"`

	Tag        string `gorm:"not null"`
	StartIndex int
	EndIndex   int
}

type TweetUrl struct {
	Id      int64 `gorm:"primaryKey"`
	TweetId int64 `gorm:"index;not null"`

	Url         string `gorm:"not null"`
	ExpandedUrl *string
	DisplayUrl  *string
	StartIndex  int
	EndIndex    int
}

type TweetMedia struct {
	Id      int64 `gorm:"primaryKey"`
	TweetId int64 `gorm:"index;not null"`

	MediaId    int64  `gorm:"not null"`
	MediaUrl   string `gorm:"not null"`
	MediaType  *string
	StartIndex int
	EndIndex   int
}

type TweetSymbol struct {
	Id      int64 `gorm:"primaryKey"`
	TweetId int64 `gorm:"index;not null"`

	Symbol     string `gorm:"not null"`
	StartIndex int
	EndIndex   int
}
