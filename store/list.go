package store

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/jinzhu/copier"
	"github.com/openflock/flockbase/model"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertList stores or refreshes a list row. Lists are not snapshotted
// like user profiles; the row tracks the latest fetch in place.
func (store *Store) UpsertList(list *twitter.List) error {
	row, err := newListRow(list)
	if err != nil {
		return err
	}
	err = store.db.Transaction(func(tx *gorm.DB) error {
		if row.OwnerId != 0 {
			if err := ensureUsers(tx, []int64{row.OwnerId}); err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"owner_id", "slug", "name", "full_name", "uri", "description",
				"mode", "member_count", "subscriber_count", "api_response", "updated_at",
			}),
		}).Create(row).Error
	})
	if err != nil {
		return &PersistenceError{Op: "upsert list", Target: row.Id, Err: err}
	}
	return nil
}

func newListRow(list *twitter.List) (*model.List, error) {
	row := &model.List{}
	if err := copier.Copy(row, list); err != nil {
		return nil, errors.Wrapf(err, "fail to convert list %d", list.Id)
	}
	if list.User != nil {
		row.OwnerId = list.User.Id
	}
	if list.FullName != nil && len(*list.FullName) > 0 {
		// The api prefixes full names with the handle sigil; drop it.
		stripped := (*list.FullName)[1:]
		row.FullName = &stripped
	}
	if list.CreatedAt != "" {
		listCreatedAt, err := twitter.ParseCreatedAt(list.CreatedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "fail to convert list %d", list.Id)
		}
		row.ListCreatedAt = &listCreatedAt
	}
	raw := []byte(list.Raw)
	if len(raw) == 0 {
		encoded, err := json.Marshal(list)
		if err != nil {
			return nil, errors.Wrapf(err, "fail to convert list %d", list.Id)
		}
		raw = encoded
	}
	row.ApiResponse = datatypes.JSON(utils.StripNulBytes(raw))
	return row, nil
}

// ReconcileListMembers reconciles a list's membership edges against a
// complete fetched member set. Same SCD semantics as ReconcileFollows,
// keyed by (list id, user id).
func (store *Store) ReconcileListMembers(listId int64, fetched []int64, asOf time.Time) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	err := store.db.Transaction(func(tx *gorm.DB) error {
		open, err := openMemberSet(tx, listId)
		if err != nil {
			return err
		}
		delta := DiffEdges(open, fetched)
		if err := insertMemberships(tx, listId, delta.ToInsert, asOf); err != nil {
			return err
		}
		if err := closeMemberships(tx, listId, delta.ToClose, asOf); err != nil {
			return err
		}
		result.Inserted = len(delta.ToInsert)
		result.Closed = len(delta.ToClose)
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "reconcile list members", Target: listId, Err: err}
	}
	return result, nil
}

// ReconcileListMembersPaged is the bounded-memory variant, consuming
// member id pages the way ReconcileFollowsPaged does.
func (store *Store) ReconcileListMembersPaged(listId int64, pager IDPager, asOf time.Time) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	var fetchErr error
	err := store.db.Transaction(func(tx *gorm.DB) error {
		open, err := openMemberSet(tx, listId)
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
			if err := insertMemberships(tx, listId, fresh, asOf); err != nil {
				return err
			}
			result.Inserted += len(fresh)
		}
		if err := pager.Err(); err != nil {
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
		if err := closeMemberships(tx, listId, toClose, asOf); err != nil {
			return err
		}
		result.Closed = len(toClose)
		return nil
	})
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err != nil {
		return nil, &PersistenceError{Op: "reconcile list members", Target: listId, Err: err}
	}
	return result, nil
}

// OpenListMemberIds returns the currently valid member set of a list, in id
// order.
func (store *Store) OpenListMemberIds(listId int64) ([]int64, error) {
	var ids []int64
	query := store.db.Model(&model.ListMembership{}).
		Where("list_id = ? AND valid_end IS NULL", listId).
		Order("user_id").
		Pluck("user_id", &ids)
	return ids, query.Error
}

func openMemberSet(tx *gorm.DB, listId int64) (map[int64]bool, error) {
	var ids []int64
	query := tx.Model(&model.ListMembership{}).
		Where("list_id = ? AND valid_end IS NULL", listId).
		Pluck("user_id", &ids)
	if query.Error != nil {
		return nil, query.Error
	}
	open := make(map[int64]bool, len(ids))
	for _, id := range ids {
		open[id] = true
	}
	return open, nil
}

func insertMemberships(tx *gorm.DB, listId int64, members []int64, asOf time.Time) error {
	if len(members) == 0 {
		return nil
	}
	if err := ensureUsers(tx, members); err != nil {
		return err
	}
	memberships := make([]model.ListMembership, 0, len(members))
	for _, member := range members {
		memberships = append(memberships, model.ListMembership{
			ListId:     listId,
			UserId:     member,
			ValidStart: asOf,
		})
	}
	return tx.CreateInBatches(memberships, insertBatchSize).Error
}

func closeMemberships(tx *gorm.DB, listId int64, members []int64, asOf time.Time) error {
	for _, chunk := range utils.ChunkInt64s(members, idChunkSize) {
		err := tx.Model(&model.ListMembership{}).
			Where("list_id = ? AND valid_end IS NULL AND user_id IN ?", listId, chunk).
			Update("valid_end", asOf).Error
		if err != nil {
			return err
		}
	}
	return nil
}
