package store

import (
	"github.com/openflock/flockbase/model"
	"github.com/openflock/flockbase/utils"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateTag get-or-creates a tag by name. Creating an existing tag is a
// no-op returning the stored row.
func (store *Store) CreateTag(name string) (*model.Tag, error) {
	tag := &model.Tag{Name: name}
	err := store.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(tag).Error; err != nil {
			return err
		}
		// On conflict nothing was written, read the canonical row back.
		return tx.Where("name = ?", name).First(tag).Error
	})
	if err != nil {
		return nil, &PersistenceError{Op: "create tag", Err: err}
	}
	return tag, nil
}

// DeleteTag removes a tag and every assignment carrying it, reporting
// whether the tag existed.
func (store *Store) DeleteTag(name string) (bool, error) {
	deleted := false
	err := store.db.Transaction(func(tx *gorm.DB) error {
		tag := &model.Tag{}
		err := tx.Where("name = ?", name).First(tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("tag_id = ?", tag.Id).Delete(&model.UserTag{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(tag).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, &PersistenceError{Op: "delete tag", Err: err}
	}
	return deleted, nil
}

// ApplyTag assigns the named tag to userIds, keeping assignments already
// present. The tag must exist.
func (store *Store) ApplyTag(name string, userIds []int64) error {
	err := store.db.Transaction(func(tx *gorm.DB) error {
		tag := &model.Tag{}
		if err := tx.Where("name = ?", name).First(tag).Error; err != nil {
			return err
		}
		ids := utils.UniqInt64s(userIds)
		if len(ids) == 0 {
			return nil
		}
		if err := ensureUsers(tx, ids); err != nil {
			return err
		}
		assignments := make([]model.UserTag, 0, len(ids))
		for _, userId := range ids {
			assignments = append(assignments, model.UserTag{UserId: userId, TagId: tag.Id})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(assignments, insertBatchSize).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(err, "tag %s does not exist", name)
	}
	if err != nil {
		return &PersistenceError{Op: "apply tag", Err: err}
	}
	return nil
}

// TagMembers returns the union of user ids assigned to the named tags.
// Unknown names contribute nothing and come back in missing so the caller
// can surface them.
func (store *Store) TagMembers(names []string) (members []int64, missing []string, err error) {
	for _, name := range names {
		tag := &model.Tag{}
		err := store.db.Where("name = ?", name).First(tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		var ids []int64
		err = store.db.Model(&model.UserTag{}).
			Where("tag_id = ?", tag.Id).
			Order("user_id").
			Pluck("user_id", &ids).Error
		if err != nil {
			return nil, nil, err
		}
		members = append(members, ids...)
	}
	return utils.UniqInt64s(members), missing, nil
}
