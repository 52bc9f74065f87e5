package model

// SchemaVersion records which schema revision initialized the database.
// Written once by the initialize job; every other database job checks it
// before touching data.
type SchemaVersion struct {
	Id      int64  `gorm:"primaryKey"`
	Version string `gorm:"not null"`
	Auditable
}
