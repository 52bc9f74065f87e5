package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

User is the stable identity anchor for an account on the remote platform.

Id: the platform-assigned numeric id, used directly as primary key. Using it
as pk (instead of a surrogate) keeps edge loading to a single insert.
Snapshots: profile fact rows fetched over time, "has-many" relation
Tags: caller-defined labels, "many-to-many" through UserTag

A User row is append-only: it is created the first time the id is observed
(as a fetch target, a follow-graph peer, or a tweet mention) and never
deleted or rewritten afterwards.

*/
type User struct {
	Id int64 `gorm:"primaryKey;autoIncrement:false"`
	Auditable

	Snapshots []*UserSnapshot `json:"snapshots"`
	Tags      []*Tag          `json:"tags" gorm:"many2many:user_tags;"`
}

// UserSnapshot is one fetch of a user's profile. The table is append-only:
// the current profile is the row with the latest CreatedAt per user, found
// by query rather than by an is-current flag.
type UserSnapshot struct {
	Id     int64 `gorm:"primaryKey"`
	UserId int64 `gorm:"index;not null"`

	ScreenName       *string
	AccountCreatedAt *time.Time
	Protected        *bool
	Verified         *bool
	DisplayName      *string
	Description      *string
	Location         *string
	Url              *string
	FriendsCount     *int64
	FollowersCount   *int64
	ListedCount      *int64

	// Raw payload as returned by the remote, NUL bytes stripped.
	ApiResponse datatypes.JSON `gorm:"not null"`

	Auditable
}
