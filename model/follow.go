package model

import "time"

/*

Follow is one validity interval of a directed follow edge, stored as a type-2
slowly changing dimension.

SourceId: the account doing the following
TargetId: the account being followed
ValidStart: when this interval was first observed
ValidEnd: when a later full fetch failed to re-observe the edge; NULL while
the edge is currently valid

Invariants:
  - at most one row per (SourceId, TargetId) has ValidEnd == NULL
  - ValidStart <= ValidEnd whenever ValidEnd is set

Rows are append-mostly. History rows are never touched; the single open row
per pair is only ever updated to set ValidEnd.

*/
type Follow struct {
	Id       int64 `gorm:"primaryKey"`
	SourceId int64 `gorm:"not null;index:idx_follows_source_open,priority:1"`
	TargetId int64 `gorm:"not null;index:idx_follows_target_open,priority:1"`

	ValidStart time.Time  `gorm:"not null"`
	ValidEnd   *time.Time `gorm:"index:idx_follows_source_open,priority:2;index:idx_follows_target_open,priority:2"`
}
