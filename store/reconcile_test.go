package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDiffEdgesConcrete(t *testing.T) {
	open := map[int64]bool{1: true, 2: true, 3: true}
	delta := DiffEdges(open, []int64{2, 3, 4})
	assert.Equal(t, []int64{4}, delta.ToInsert)
	assert.Equal(t, []int64{1}, delta.ToClose)
	assert.False(t, delta.Empty())
}

func TestDiffEdgesIdempotent(t *testing.T) {
	open := map[int64]bool{1: true, 2: true}
	delta := DiffEdges(open, []int64{1, 2})
	assert.True(t, delta.Empty())
}

func TestDiffEdgesOutputsAreDisjoint(t *testing.T) {
	cases := []struct {
		name    string
		open    []int64
		fetched []int64
	}{
		{"overlap", []int64{1, 2, 3}, []int64{2, 3, 4}},
		{"disjoint", []int64{1, 2}, []int64{3, 4}},
		{"identical", []int64{5, 6}, []int64{6, 5}},
		{"empty_open", nil, []int64{1}},
		{"empty_fetch", []int64{1}, nil},
		{"fetched_duplicates", []int64{1}, []int64{2, 2, 1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			open := make(map[int64]bool)
			for _, id := range tc.open {
				open[id] = true
			}
			delta := DiffEdges(open, tc.fetched)
			inserted := make(map[int64]bool)
			for _, id := range delta.ToInsert {
				assert.False(t, inserted[id], "duplicate insert %d", id)
				inserted[id] = true
			}
			for _, id := range delta.ToClose {
				assert.False(t, inserted[id], "id %d both inserted and closed", id)
			}
		})
	}
}

func TestDiffEdgesCountsDuplicatesOnce(t *testing.T) {
	delta := DiffEdges(map[int64]bool{2: true}, []int64{4, 4, 2, 2})
	assert.Equal(t, []int64{4}, delta.ToInsert)
	assert.Empty(t, delta.ToClose)
}

func TestDiffEdgesClosesAllWhenFetchEmpty(t *testing.T) {
	delta := DiffEdges(map[int64]bool{3: true, 1: true, 2: true}, nil)
	assert.Empty(t, delta.ToInsert)
	assert.Equal(t, []int64{1, 2, 3}, delta.ToClose)
}

func TestSliceIDPagerPages(t *testing.T) {
	pager := NewSliceIDPager([]int64{1, 2, 3, 4, 5}, 2)
	var pages [][]int64
	for pager.Next() {
		page := make([]int64, len(pager.Ids()))
		copy(page, pager.Ids())
		pages = append(pages, page)
	}
	assert.NoError(t, pager.Err())
	assert.Empty(t, cmp.Diff([][]int64{{1, 2}, {3, 4}, {5}}, pages))
}

func TestSliceIDPagerEmpty(t *testing.T) {
	pager := NewSliceIDPager(nil, 10)
	assert.False(t, pager.Next())
	assert.NoError(t, pager.Err())
}
