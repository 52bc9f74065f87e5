package job

import (
	"context"
	"testing"

	"github.com/openflock/flockbase/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openListMembers(t *testing.T, config Config, listId int64) []int64 {
	t.Helper()
	ids, err := config.Store.OpenListMemberIds(listId)
	require.NoError(t, err)
	return ids
}

func TestListMembersJobWholeBatch(t *testing.T) {
	api := newFakeAPI()
	api.addUser(9, "owner")
	api.addUser(1, "alice")
	api.addUser(2, "bob")
	api.addUser(3, "carol")
	api.addList(500, 9, "gophers", 1, 2, 3)
	config := newTestConfig(t, api)

	targets, err := ParseListTargets([]string{"500"})
	require.NoError(t, err)

	summary, err := NewListMembersJob(config, targets).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, summary.State)
	require.Len(t, summary.Targets, 1)
	assert.Equal(t, "500", summary.Targets[0].Target)
	assert.Equal(t, 3, summary.Targets[0].EdgesInserted)
	assert.Equal(t, 3, summary.Targets[0].SnapshotsInserted)
	assert.Equal(t, []int64{1, 2, 3}, openListMembers(t, config, 500))

	var list model.List
	require.NoError(t, config.Store.DB().First(&list, 500).Error)
	assert.Equal(t, int64(9), list.OwnerId)
	assert.Equal(t, "gophers", list.Slug)

	// Whole batch mode snapshots every member profile on the way.
	assert.Equal(t, int64(1), snapshotCount(t, config, 1))
	assert.Equal(t, int64(1), snapshotCount(t, config, 2))
	assert.Equal(t, int64(1), snapshotCount(t, config, 3))
}

func TestListMembersJobStreamingReconcilesIdsOnly(t *testing.T) {
	api := newFakeAPI()
	api.addUser(9, "owner")
	api.addUser(1, "alice")
	api.addUser(2, "bob")
	api.addUser(3, "carol")
	api.addList(500, 9, "gophers", 1, 2, 3)
	config := newTestConfig(t, api)
	config.BatchSize = 2

	targets, err := ParseListTargets([]string{"500"})
	require.NoError(t, err)

	summary, err := NewListMembersJob(config, targets).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, openListMembers(t, config, 500))
	assert.Equal(t, 3, summary.Targets[0].EdgesInserted)
	assert.Equal(t, 0, summary.Targets[0].SnapshotsInserted)
	assert.Equal(t, int64(0), snapshotCount(t, config, 1))
}

func TestListMembersJobByOwnerAndSlug(t *testing.T) {
	api := newFakeAPI()
	api.addUser(9, "owner")
	api.addUser(1, "alice")
	api.addList(500, 9, "gophers", 1)
	config := newTestConfig(t, api)

	targets, err := ParseListTargets([]string{"@owner/gophers"})
	require.NoError(t, err)

	summary, err := NewListMembersJob(config, targets).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, summary.State)
	assert.Equal(t, []int64{1}, openListMembers(t, config, 500))
}

func TestListMembersJobRemembersDepartures(t *testing.T) {
	api := newFakeAPI()
	api.addUser(9, "owner")
	api.addUser(1, "alice")
	api.addUser(2, "bob")
	api.addList(500, 9, "gophers", 1, 2)
	config := newTestConfig(t, api)

	targets, err := ParseListTargets([]string{"500"})
	require.NoError(t, err)

	_, err = NewListMembersJob(config, targets).Run(context.Background())
	require.NoError(t, err)

	api.members[500] = []int64{2}
	summary, err := NewListMembersJob(config, targets).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Targets[0].EdgesClosed)
	assert.Equal(t, []int64{2}, openListMembers(t, config, 500))

	// The departed membership survives as a closed interval.
	var total int64
	require.NoError(t, config.Store.DB().Model(&model.ListMembership{}).Where("list_id = ?", 500).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}

func TestListMembersJobMissingListPolicy(t *testing.T) {
	api := newFakeAPI()
	config := newTestConfig(t, api)

	targets, err := ParseListTargets([]string{"404404"})
	require.NoError(t, err)

	summary, err := NewListMembersJob(config, targets).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, summary.State)

	config.BestEffort = true
	summary, err = NewListMembersJob(config, targets).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, summary.State)
	require.Len(t, summary.Skipped(), 1)
	assert.Contains(t, summary.Skipped()[0].Reason, "not_found")
}
