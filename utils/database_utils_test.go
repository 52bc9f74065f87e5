package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateTempDBMigratesSchema(t *testing.T) {
	db, dbName := CreateTempDB(t)

	exists, err := IsDatabaseExist(dbName)
	assert.Nil(t, err)
	assert.True(t, exists)

	for _, table := range []string{
		"users", "user_snapshots", "tweets", "tweet_mentions", "tweet_hashtags",
		"tweet_urls", "tweet_media", "tweet_symbols", "follows", "lists",
		"list_memberships", "tags", "user_tags", "schema_versions",
	} {
		assert.Truef(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestIsDatabaseExist(t *testing.T) {
	exists, err := IsDatabaseExist("postgres")
	assert.Nil(t, err)
	assert.True(t, exists)

	exists, err = IsDatabaseExist("DOES_NOT_EXIST")
	assert.Nil(t, err)
	assert.False(t, exists)
}
