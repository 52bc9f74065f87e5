package store

import (
	"encoding/json"

	"github.com/jinzhu/copier"
	"github.com/openflock/flockbase/model"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ensureUsers inserts identity anchor rows for ids not stored before,
// leaving existing rows untouched.
func ensureUsers(tx *gorm.DB, ids []int64) error {
	ids = utils.UniqInt64s(ids)
	if len(ids) == 0 {
		return nil
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, model.User{Id: id})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(users, insertBatchSize).Error
}

// UpsertUsers inserts identity anchors for the given ids; ids already
// stored are left untouched.
func (store *Store) UpsertUsers(ids []int64) error {
	if err := ensureUsers(store.db, ids); err != nil {
		return &PersistenceError{Op: "upsert users", Err: err}
	}
	return nil
}

// SaveUserSnapshots appends one profile snapshot row per fetched user,
// anchoring unseen ids in the same transaction. Returns how many
// snapshots were written.
func (store *Store) SaveUserSnapshots(users []twitter.User) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}
	snapshots := make([]*model.UserSnapshot, 0, len(users))
	ids := make([]int64, 0, len(users))
	for i := range users {
		snapshot, err := newUserSnapshot(&users[i])
		if err != nil {
			return 0, err
		}
		snapshots = append(snapshots, snapshot)
		ids = append(ids, users[i].Id)
	}
	err := store.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUsers(tx, ids); err != nil {
			return err
		}
		return tx.CreateInBatches(snapshots, insertBatchSize).Error
	})
	if err != nil {
		return 0, &PersistenceError{Op: "save user snapshots", Err: err}
	}
	return len(snapshots), nil
}

// newUserSnapshot converts a fetched profile into a snapshot row.
func newUserSnapshot(user *twitter.User) (*model.UserSnapshot, error) {
	snapshot := &model.UserSnapshot{}
	if err := copier.Copy(snapshot, user); err != nil {
		return nil, errors.Wrapf(err, "fail to convert user %d", user.Id)
	}
	// copier maps same-named fields, so the platform id landed on the
	// serial pk; it belongs on UserId instead.
	snapshot.Id = 0
	snapshot.UserId = user.Id
	snapshot.DisplayName = user.Name
	snapshot.Url = user.ProfileUrl()
	if user.CreatedAt != "" {
		accountCreatedAt, err := twitter.ParseCreatedAt(user.CreatedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "fail to convert user %d", user.Id)
		}
		snapshot.AccountCreatedAt = &accountCreatedAt
	}
	raw := []byte(user.Raw)
	if len(raw) == 0 {
		encoded, err := json.Marshal(user)
		if err != nil {
			return nil, errors.Wrapf(err, "fail to convert user %d", user.Id)
		}
		raw = encoded
	}
	snapshot.ApiResponse = datatypes.JSON(utils.StripNulBytes(raw))
	return snapshot, nil
}

// UserIdByScreenName maps a screen name to the user id of its most recent
// snapshot, 0 when the name has never been snapshotted. Screen names
// compare case insensitively, as the platform treats them.
func (store *Store) UserIdByScreenName(name string) (int64, error) {
	var snapshot model.UserSnapshot
	err := store.db.Where("lower(screen_name) = lower(?)", name).
		Order("created_at DESC, id DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return snapshot.UserId, nil
}

// KnownUserIds filters ids down to the subset with identity anchor rows.
func (store *Store) KnownUserIds(ids []int64) (map[int64]bool, error) {
	known := make(map[int64]bool, len(ids))
	for _, chunk := range utils.ChunkInt64s(utils.UniqInt64s(ids), idChunkSize) {
		var found []int64
		if err := store.db.Model(&model.User{}).Where("id IN ?", chunk).Pluck("id", &found).Error; err != nil {
			return nil, err
		}
		for _, id := range found {
			known[id] = true
		}
	}
	return known, nil
}
