package model

// Tag is a caller-defined label applied to users, used for later target
// resolution ("fetch tweets for everyone tagged economists"). No SCD
// semantics: assignments are plain insert/delete.
type Tag struct {
	Id   int64  `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
	Auditable

	Users []*User `json:"users" gorm:"many2many:user_tags;"`
}

// UserTag is the join table behind the User<->Tag many-to-many relation.
type UserTag struct {
	UserId int64 `gorm:"primaryKey;autoIncrement:false"`
	TagId  int64 `gorm:"primaryKey;autoIncrement:false"`
	Auditable
}
