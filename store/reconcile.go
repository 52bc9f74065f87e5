package store

import "sort"

// Delta is the minimal write set turning the currently open edge set into
// the freshly fetched one. ToInsert and ToClose are disjoint by
// construction: an id cannot be both absent from and present in the open
// set.
type Delta struct {
	ToInsert []int64
	ToClose  []int64
}

// Empty reports whether applying the delta would write nothing.
func (d Delta) Empty() bool {
	return len(d.ToInsert) == 0 && len(d.ToClose) == 0
}

// DiffEdges diffs a freshly fetched peer id set against the open set.
// Fetched ids not open are to insert, open ids not fetched are to close,
// and ids in both are untouched so an unchanged edge keeps its original
// validity interval. Fetched duplicates count once; ToInsert preserves
// first-seen fetch order, ToClose is sorted.
func DiffEdges(open map[int64]bool, fetched []int64) Delta {
	delta := Delta{}
	seen := make(map[int64]bool, len(fetched))
	for _, id := range fetched {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !open[id] {
			delta.ToInsert = append(delta.ToInsert, id)
		}
	}
	for id := range open {
		if !seen[id] {
			delta.ToClose = append(delta.ToClose, id)
		}
	}
	sort.Slice(delta.ToClose, func(i, j int) bool { return delta.ToClose[i] < delta.ToClose[j] })
	return delta
}

// IDPager is the page-at-a-time id source the streaming reconcilers
// consume. The cursor pagers in the twitter package satisfy it.
type IDPager interface {
	Next() bool
	Ids() []int64
	Err() error
}

// SliceIDPager adapts an in-memory id list into an IDPager yielding pages
// of at most pageSize ids.
type SliceIDPager struct {
	ids      []int64
	pageSize int
	page     []int64
}

func NewSliceIDPager(ids []int64, pageSize int) *SliceIDPager {
	if pageSize <= 0 {
		pageSize = len(ids)
	}
	return &SliceIDPager{ids: ids, pageSize: pageSize}
}

func (p *SliceIDPager) Next() bool {
	if len(p.ids) == 0 {
		return false
	}
	n := p.pageSize
	if n > len(p.ids) {
		n = len(p.ids)
	}
	p.page, p.ids = p.ids[:n], p.ids[n:]
	return true
}

func (p *SliceIDPager) Ids() []int64 {
	return p.page
}

func (p *SliceIDPager) Err() error {
	return nil
}
