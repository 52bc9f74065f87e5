package store

import (
	"sort"
	"time"

	"github.com/openflock/flockbase/model"
	"github.com/openflock/flockbase/utils"
	"gorm.io/gorm"
)

// Direction selects which side of a follow edge a fetched peer id fills.
type Direction int

const (
	// Followers: the peers follow the subject, peer ids land in SourceId.
	Followers Direction = iota
	// Friends: the subject follows the peers, peer ids land in TargetId.
	Friends
)

func (direction Direction) String() string {
	if direction == Followers {
		return "followers"
	}
	return "friends"
}

// edge orients a peer id into (source, target) around the subject.
func (direction Direction) edge(subjectId, peerId int64) (int64, int64) {
	if direction == Followers {
		return peerId, subjectId
	}
	return subjectId, peerId
}

// ReconcileResult reports what one reconciliation wrote.
type ReconcileResult struct {
	Inserted int
	Closed   int
}

// ReconcileFollows reconciles one direction of subjectId's follow edges
// against a complete fetched peer set: open edges absent from the fetch
// are closed as of asOf, peers without an open edge get a new open row,
// unchanged edges keep their intervals. The whole write set, identity
// anchors included, commits in one transaction; on failure the open set
// is exactly as before.
func (store *Store) ReconcileFollows(subjectId int64, direction Direction, fetched []int64, asOf time.Time) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	err := store.db.Transaction(func(tx *gorm.DB) error {
		open, err := openFollowSet(tx, subjectId, direction)
		if err != nil {
			return err
		}
		delta := DiffEdges(open, fetched)
		if err := insertFollows(tx, subjectId, direction, delta.ToInsert, asOf); err != nil {
			return err
		}
		if err := closeFollows(tx, subjectId, direction, delta.ToClose, asOf); err != nil {
			return err
		}
		result.Inserted = len(delta.ToInsert)
		result.Closed = len(delta.ToClose)
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "reconcile " + direction.String(), Target: subjectId, Err: err}
	}
	return result, nil
}

// ReconcileFollowsPaged reconciles from a pager without materializing the
// fetched set: per page, peers without an open edge are inserted right
// away and open edges are marked re-observed; after the final page the
// open edges never re-observed are closed. Memory stays bounded by the
// open set plus the newly inserted ids, not by how many ids the pager
// yields. The final state matches ReconcileFollows fed the concatenation
// of all pages.
func (store *Store) ReconcileFollowsPaged(subjectId int64, direction Direction, pager IDPager, asOf time.Time) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	var fetchErr error
	err := store.db.Transaction(func(tx *gorm.DB) error {
		open, err := openFollowSet(tx, subjectId, direction)
		if err != nil {
			return err
		}
		reobserved := make(map[int64]bool)
		inserted := make(map[int64]bool)
		for pager.Next() {
			page := pager.Ids()
			fresh := make([]int64, 0, len(page))
			for _, id := range page {
				if open[id] {
					reobserved[id] = true
					continue
				}
				if inserted[id] {
					continue
				}
				inserted[id] = true
				fresh = append(fresh, id)
			}
			if err := insertFollows(tx, subjectId, direction, fresh, asOf); err != nil {
				return err
			}
			result.Inserted += len(fresh)
		}
		if err := pager.Err(); err != nil {
			// A failed fetch aborts the reconciliation; rolling back keeps
			// the open set untouched rather than half-applied.
			fetchErr = err
			return err
		}
		toClose := make([]int64, 0, len(open)-len(reobserved))
		for id := range open {
			if !reobserved[id] {
				toClose = append(toClose, id)
			}
		}
		sort.Slice(toClose, func(i, j int) bool { return toClose[i] < toClose[j] })
		if err := closeFollows(tx, subjectId, direction, toClose, asOf); err != nil {
			return err
		}
		result.Closed = len(toClose)
		return nil
	})
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err != nil {
		return nil, &PersistenceError{Op: "reconcile " + direction.String(), Target: subjectId, Err: err}
	}
	return result, nil
}

// openFollowSet loads the peer ids of the currently open edges on one
// side of subjectId.
func openFollowSet(tx *gorm.DB, subjectId int64, direction Direction) (map[int64]bool, error) {
	var ids []int64
	query := tx.Model(&model.Follow{}).Where("valid_end IS NULL")
	if direction == Followers {
		query = query.Where("target_id = ?", subjectId).Pluck("source_id", &ids)
	} else {
		query = query.Where("source_id = ?", subjectId).Pluck("target_id", &ids)
	}
	if query.Error != nil {
		return nil, query.Error
	}
	open := make(map[int64]bool, len(ids))
	for _, id := range ids {
		open[id] = true
	}
	return open, nil
}

func insertFollows(tx *gorm.DB, subjectId int64, direction Direction, peers []int64, asOf time.Time) error {
	if len(peers) == 0 {
		return nil
	}
	// Anchor rows first so every edge endpoint is a known user.
	if err := ensureUsers(tx, append([]int64{subjectId}, peers...)); err != nil {
		return err
	}
	follows := make([]model.Follow, 0, len(peers))
	for _, peer := range peers {
		sourceId, targetId := direction.edge(subjectId, peer)
		follows = append(follows, model.Follow{
			SourceId:   sourceId,
			TargetId:   targetId,
			ValidStart: asOf,
		})
	}
	return tx.CreateInBatches(follows, insertBatchSize).Error
}

func closeFollows(tx *gorm.DB, subjectId int64, direction Direction, peers []int64, asOf time.Time) error {
	for _, chunk := range utils.ChunkInt64s(peers, idChunkSize) {
		query := tx.Model(&model.Follow{}).Where("valid_end IS NULL")
		if direction == Followers {
			query = query.Where("target_id = ? AND source_id IN ?", subjectId, chunk)
		} else {
			query = query.Where("source_id = ? AND target_id IN ?", subjectId, chunk)
		}
		if err := query.Update("valid_end", asOf).Error; err != nil {
			return err
		}
	}
	return nil
}
