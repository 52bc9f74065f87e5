package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/openflock/flockbase/model"
	"github.com/openflock/flockbase/utils"
	"gorm.io/gorm"
)

// SchemaVersionTag is stamped into schema_versions by InitializeSchema.
// Jobs refuse to run against a database stamped with anything else.
const SchemaVersionTag = "0.1.0"

const (
	// insertBatchSize bounds multi row INSERT statements.
	insertBatchSize = 500
	// idChunkSize bounds id lists interpolated into IN clauses.
	idChunkSize = 500
)

/*

Store is the persistence layer over the relational schema in model/. Every
write path goes through an explicit handle passed in by the caller; nothing
here reaches for global connection state.

Writes are scoped per target entity: each reconciliation or upsert commits
(or rolls back) on its own, so a failure for one target never disturbs what
earlier targets committed.

*/
type Store struct {
	db *gorm.DB

	schemaVerified bool
}

// NewStore wraps an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers composing their own queries.
func (store *Store) DB() *gorm.DB {
	return store.db
}

// InitializeSchema drops every known table, recreates the schema and stamps
// the current version. Destructive; callers gate it behind an explicit flag.
func (store *Store) InitializeSchema() error {
	if err := utils.DropAllTables(store.db); err != nil {
		return &PersistenceError{Op: "drop tables", Err: err}
	}
	utils.DatabaseSetupAndMigration(store.db)
	return store.StampSchemaVersion()
}

// StampSchemaVersion records the current schema version, replacing any
// prior stamp.
func (store *Store) StampSchemaVersion() error {
	err := store.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.SchemaVersion{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.SchemaVersion{Version: SchemaVersionTag}).Error
	})
	if err != nil {
		return &PersistenceError{Op: "stamp schema version", Err: err}
	}
	return nil
}

// VerifySchemaVersion checks the database carries exactly the schema
// version this build writes. Verified once per Store.
func (store *Store) VerifySchemaVersion() error {
	if store.schemaVerified {
		return nil
	}
	var versions []model.SchemaVersion
	if err := store.db.Find(&versions).Error; err != nil {
		return fmt.Errorf("bad or missing schema version, has the database been initialized: %w", err)
	}
	if len(versions) != 1 {
		return fmt.Errorf("bad or missing schema version, has the database been initialized")
	}
	if versions[0].Version != SchemaVersionTag {
		return fmt.Errorf("database schema version %s does not match %s, re-run initialize", versions[0].Version, SchemaVersionTag)
	}
	store.schemaVerified = true
	return nil
}

// PersistenceError is a database write failure scoped to one target's
// persistence. Committed state of other targets is unaffected.
type PersistenceError struct {
	Op     string
	Target int64
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Target != 0 {
		return fmt.Sprintf("%s for target %d: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Constraint names the violated Postgres constraint when the underlying
// failure is a constraint violation, empty otherwise.
func (e *PersistenceError) Constraint() string {
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// IsPersistenceError reports whether err is a PersistenceError, however
// deeply wrapped.
func IsPersistenceError(err error) bool {
	var persistenceErr *PersistenceError
	return errors.As(err, &persistenceErr)
}
