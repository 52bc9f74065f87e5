package job

import (
	"context"
	"testing"

	"github.com/openflock/flockbase/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotCount(t *testing.T, config Config, userId int64) int64 {
	t.Helper()
	var count int64
	query := config.Store.DB().Model(&model.UserSnapshot{}).Where("user_id = ?", userId).Count(&count)
	require.NoError(t, query.Error)
	return count
}

func TestUserInfoJobAppendsFreshSnapshots(t *testing.T) {
	api := newFakeAPI()
	api.addUser(1, "alice")
	config := newTestConfig(t, api)

	targets, err := ParseUserTargets([]string{"alice"})
	require.NoError(t, err)

	summary, err := NewUserInfoJob(config, targets).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Totals.Snapshots)
	assert.Equal(t, int64(1), snapshotCount(t, config, 1))

	// The handle changed upstream; hydration refetches even known users and
	// the stored resolution follows the newest snapshot.
	api.addUser(1, "alice_renamed")
	byId, err := ParseUserTargets([]string{"1"})
	require.NoError(t, err)
	summary, err = NewUserInfoJob(config, byId).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Totals.Snapshots)
	assert.Equal(t, int64(2), snapshotCount(t, config, 1))

	id, err := config.Store.UserIdByScreenName("alice_renamed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestUserInfoJobMissingTargetPolicy(t *testing.T) {
	api := newFakeAPI()
	api.addUser(1, "alice")
	config := newTestConfig(t, api)

	targets, err := ParseUserTargets([]string{"alice", "ghost"})
	require.NoError(t, err)

	summary, err := NewUserInfoJob(config, targets).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not resolve")
	assert.Equal(t, StateFailed, summary.State)

	config.AllowMissing = true
	summary, err = NewUserInfoJob(config, targets).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, summary.State)
	require.Len(t, summary.Skipped(), 1)
	assert.Equal(t, "screen-name:ghost", summary.Skipped()[0].Target)
}

func TestUserInfoJobExpandsTagTargets(t *testing.T) {
	api := newFakeAPI()
	api.addUser(1, "alice")
	api.addUser(2, "bob")
	config := newTestConfig(t, api)

	_, err := config.Store.CreateTag("crowd")
	require.NoError(t, err)
	require.NoError(t, config.Store.ApplyTag("crowd", []int64{1, 2}))

	summary, err := NewUserInfoJob(config, TagTargets([]string{"crowd"})).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Totals.Resolved)
	assert.Equal(t, int64(1), snapshotCount(t, config, 1))
	assert.Equal(t, int64(1), snapshotCount(t, config, 2))
}
