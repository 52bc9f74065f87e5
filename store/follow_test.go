package store

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openflock/flockbase/model"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, _ := utils.CreateTempDB(t)
	return NewStore(db)
}

// asOf numbers observation instants so tests can refer to "the second
// fetch" without repeating timestamps.
func asOf(step int) time.Time {
	return time.Date(2021, 11, 8, 0, 0, 0, 0, time.UTC).Add(time.Duration(step) * time.Hour)
}

func sortedCopy(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func openEdgeSet(t *testing.T, store *Store, subjectId int64, direction Direction) []int64 {
	t.Helper()
	open, err := openFollowSet(store.db, subjectId, direction)
	require.NoError(t, err)
	ids := make([]int64, 0, len(open))
	for id := range open {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func followRowCount(t *testing.T, store *Store) int64 {
	t.Helper()
	var count int64
	require.NoError(t, store.db.Model(&model.Follow{}).Count(&count).Error)
	return count
}

func assertNoDuplicateOpenFollows(t *testing.T, store *Store) {
	t.Helper()
	var pairs []struct {
		SourceId int64
		TargetId int64
		N        int64
	}
	err := store.db.Model(&model.Follow{}).
		Select("source_id, target_id, COUNT(*) AS n").
		Where("valid_end IS NULL").
		Group("source_id, target_id").
		Having("COUNT(*) > 1").
		Scan(&pairs).Error
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

// fakePager replays fixed pages, optionally failing after the last one.
type fakePager struct {
	pages [][]int64
	err   error
	next  int
}

func (p *fakePager) Next() bool {
	if p.next >= len(p.pages) {
		return false
	}
	p.next++
	return true
}

func (p *fakePager) Ids() []int64 {
	return p.pages[p.next-1]
}

func (p *fakePager) Err() error {
	return p.err
}

func TestReconcileFollowsClosureSequence(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	snapshots := [][]int64{
		{1, 2, 3},
		{2, 3, 4},
		{},
		{5},
		{5},
	}
	for step, snapshot := range snapshots {
		_, err := store.ReconcileFollows(subject, Followers, snapshot, asOf(step))
		require.NoError(t, err)
		assert.Equal(t, sortedCopy(snapshot), openEdgeSet(t, store, subject, Followers), "after snapshot %d", step)
		assertNoDuplicateOpenFollows(t, store)
	}
}

func TestReconcileFollowsConcrete(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	_, err := store.ReconcileFollows(subject, Followers, []int64{1, 2, 3}, asOf(0))
	require.NoError(t, err)

	result, err := store.ReconcileFollows(subject, Followers, []int64{2, 3, 4}, asOf(1))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Closed)
	assert.Equal(t, []int64{2, 3, 4}, openEdgeSet(t, store, subject, Followers))

	var closed model.Follow
	require.NoError(t, store.db.Where("source_id = ? AND target_id = ?", 1, subject).First(&closed).Error)
	require.NotNil(t, closed.ValidEnd)
	assert.WithinDuration(t, asOf(0), closed.ValidStart, time.Second)
	assert.WithinDuration(t, asOf(1), *closed.ValidEnd, time.Second)

	var reopened model.Follow
	require.NoError(t, store.db.Where("source_id = ? AND target_id = ?", 4, subject).First(&reopened).Error)
	assert.Nil(t, reopened.ValidEnd)
	assert.WithinDuration(t, asOf(1), reopened.ValidStart, time.Second)

	// An unchanged peer keeps its original interval start.
	var kept model.Follow
	require.NoError(t, store.db.Where("source_id = ? AND target_id = ?", 2, subject).First(&kept).Error)
	assert.Nil(t, kept.ValidEnd)
	assert.WithinDuration(t, asOf(0), kept.ValidStart, time.Second)
}

func TestReconcileFollowsPreservesHistory(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	for step, snapshot := range [][]int64{{7}, {}, {7}} {
		_, err := store.ReconcileFollows(subject, Followers, snapshot, asOf(step))
		require.NoError(t, err)
	}

	// Present, absent, present again: two distinct rows, the first with a
	// closed interval, never a single row with a gap.
	var rows []model.Follow
	require.NoError(t, store.db.Where("source_id = ? AND target_id = ?", 7, subject).Order("valid_start").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].ValidEnd)
	assert.WithinDuration(t, asOf(0), rows[0].ValidStart, time.Second)
	assert.WithinDuration(t, asOf(1), *rows[0].ValidEnd, time.Second)
	assert.Nil(t, rows[1].ValidEnd)
	assert.WithinDuration(t, asOf(2), rows[1].ValidStart, time.Second)
}

func TestReconcileFollowsIdempotent(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	_, err := store.ReconcileFollows(subject, Friends, []int64{1, 2, 3}, asOf(0))
	require.NoError(t, err)

	result, err := store.ReconcileFollows(subject, Friends, []int64{1, 2, 3}, asOf(1))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 0, result.Closed)
	assert.Equal(t, int64(3), followRowCount(t, store))
}

func TestReconcileFollowsDirectionsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	_, err := store.ReconcileFollows(subject, Followers, []int64{10}, asOf(0))
	require.NoError(t, err)
	_, err = store.ReconcileFollows(subject, Friends, []int64{20}, asOf(0))
	require.NoError(t, err)

	// A follower peer fills source_id, a friend peer fills target_id.
	var follower model.Follow
	require.NoError(t, store.db.Where("source_id = ? AND target_id = ?", 10, subject).First(&follower).Error)
	var friend model.Follow
	require.NoError(t, store.db.Where("source_id = ? AND target_id = ?", subject, 20).First(&friend).Error)

	// Emptying one direction leaves the other open.
	_, err = store.ReconcileFollows(subject, Followers, nil, asOf(1))
	require.NoError(t, err)
	assert.Empty(t, openEdgeSet(t, store, subject, Followers))
	assert.Equal(t, []int64{20}, openEdgeSet(t, store, subject, Friends))
}

func TestReconcileFollowsAnchorsUsers(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	_, err := store.ReconcileFollows(subject, Followers, []int64{7, 8}, asOf(0))
	require.NoError(t, err)

	var ids []int64
	require.NoError(t, store.db.Model(&model.User{}).Order("id").Pluck("id", &ids).Error)
	assert.Equal(t, []int64{7, 8, 42}, ids)
}

func TestReconcileFollowsStreamingEquivalence(t *testing.T) {
	subject := int64(42)
	initial := []int64{1, 2, 3, 4, 5}
	final := []int64{4, 5, 6, 7, 8, 9}

	baseline := newTestStore(t)
	_, err := baseline.ReconcileFollows(subject, Followers, initial, asOf(0))
	require.NoError(t, err)
	_, err = baseline.ReconcileFollows(subject, Followers, final, asOf(1))
	require.NoError(t, err)
	wantOpen := openEdgeSet(t, baseline, subject, Followers)
	wantTotal := followRowCount(t, baseline)

	for _, pageSize := range []int{1, 2, 3, 100} {
		pageSize := pageSize
		t.Run(fmt.Sprintf("page_size_%d", pageSize), func(t *testing.T) {
			store := newTestStore(t)
			_, err := store.ReconcileFollows(subject, Followers, initial, asOf(0))
			require.NoError(t, err)

			result, err := store.ReconcileFollowsPaged(subject, Followers, NewSliceIDPager(final, pageSize), asOf(1))
			require.NoError(t, err)
			assert.Equal(t, 4, result.Inserted)
			assert.Equal(t, 3, result.Closed)
			assert.Empty(t, cmp.Diff(wantOpen, openEdgeSet(t, store, subject, Followers)))
			assert.Equal(t, wantTotal, followRowCount(t, store))
			assertNoDuplicateOpenFollows(t, store)
		})
	}
}

func TestReconcileFollowsPagedRepeatedIds(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	_, err := store.ReconcileFollows(subject, Followers, []int64{2}, asOf(0))
	require.NoError(t, err)

	// The same id showing up on several pages must neither duplicate an
	// open row nor insert twice.
	pager := &fakePager{pages: [][]int64{{1, 2}, {2, 3, 1}}}
	result, err := store.ReconcileFollowsPaged(subject, Followers, pager, asOf(1))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Closed)
	assert.Equal(t, []int64{1, 2, 3}, openEdgeSet(t, store, subject, Followers))
	assertNoDuplicateOpenFollows(t, store)
}

func TestReconcileFollowsPagedFetchFailureRollsBack(t *testing.T) {
	store := newTestStore(t)
	subject := int64(42)
	_, err := store.ReconcileFollows(subject, Followers, []int64{1, 2}, asOf(0))
	require.NoError(t, err)

	wantErr := &twitter.APIError{Kind: twitter.KindNotFound, StatusCode: 404}
	pager := &fakePager{pages: [][]int64{{3, 4}}, err: wantErr}
	_, err = store.ReconcileFollowsPaged(subject, Followers, pager, asOf(1))
	require.Error(t, err)
	assert.True(t, twitter.IsNotFound(err))
	assert.False(t, IsPersistenceError(err))

	// The failed run leaves no trace: open set and row count are exactly
	// as before.
	assert.Equal(t, []int64{1, 2}, openEdgeSet(t, store, subject, Followers))
	assert.Equal(t, int64(2), followRowCount(t, store))
}
