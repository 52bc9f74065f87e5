package model

import "time"

// Auditable carries the insertion/modification bookkeeping columns shared by
// every persisted entity. Embed it instead of redeclaring the columns.
type Auditable struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}
