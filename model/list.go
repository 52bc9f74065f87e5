package model

import (
	"time"

	"gorm.io/datatypes"
)

// List is a curated member list owned by a user on the remote platform. The
// platform-assigned id is the primary key, same as User.
type List struct {
	Id      int64 `gorm:"primaryKey;autoIncrement:false"`
	OwnerId int64 `gorm:"index;not null"`

	Slug            string `gorm:"not null"`
	Name            *string
	FullName        *string
	Uri             *string
	Description     *string
	Mode            *string
	MemberCount     *int64
	SubscriberCount *int64
	ListCreatedAt   *time.Time

	ApiResponse datatypes.JSON `gorm:"not null"`

	Auditable
}

// ListMembership is one validity interval of a list-membership edge. Same
// type-2 SCD shape and invariants as Follow, keyed by (ListId, UserId).
type ListMembership struct {
	Id     int64 `gorm:"primaryKey"`
	ListId int64 `gorm:"not null;index:idx_list_memberships_open,priority:1"`
	UserId int64 `gorm:"not null;index"`

	ValidStart time.Time  `gorm:"not null"`
	ValidEnd   *time.Time `gorm:"index:idx_list_memberships_open,priority:2"`
}
