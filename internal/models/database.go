package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when a record does not exist in the ledger
var ErrNotFound = bolthold.ErrNotFound

// Database wraps the bolthold store holding the watch ledger and poll cursor
type Database struct {
	store *bolthold.Store
}

// NewDatabase opens the ledger store, creating it if it does not exist. An
// unreadable store file is moved aside to <path>.corrupt and replaced with an
// empty one; recovered reports that this happened so the caller can warn that
// already-recorded watches may be re-notified. A lock timeout (another process
// holding the file) is a plain error, never grounds for discarding the ledger.
func NewDatabase(path string) (db *Database, recovered bool, err error) {
	store, err := openStore(path)
	if err == nil {
		return &Database{store: store}, false, nil
	}
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, false, fmt.Errorf("failed to open database: %w", err)
	}

	if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
		return nil, false, fmt.Errorf("failed to open database: %w", err)
	}
	store, err = openStore(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open database after quarantine: %w", err)
	}
	return &Database{store: store}, true, nil
}

func openStore(path string) (*bolthold.Store, error) {
	return bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Watch record operations

// UpsertRecord inserts or overwrites a record. bbolt fsyncs on commit, so the
// record is durable before this returns; a state transition is only committed
// once this has succeeded.
func (db *Database) UpsertRecord(record *WatchRecord) error {
	if record.ItemID == "" {
		return fmt.Errorf("record has no item ID")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.UpdatedAt = time.Now()

	if err := db.store.Upsert(record.ItemID, record); err != nil {
		return fmt.Errorf("failed to persist record %s: %w", record.ItemID, err)
	}
	return nil
}

// GetRecord retrieves a record by Plex rating key
func (db *Database) GetRecord(itemID string) (*WatchRecord, error) {
	var record WatchRecord
	if err := db.store.Get(itemID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// HasRecord reports whether the item already exists in the ledger
func (db *Database) HasRecord(itemID string) (bool, error) {
	_, err := db.GetRecord(itemID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bolthold.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// GetPendingRecords retrieves records that are neither synced nor failed,
// used for startup recovery
func (db *Database) GetPendingRecords() ([]*WatchRecord, error) {
	var records []*WatchRecord
	err := db.store.Find(&records,
		bolthold.Where("Status").In(StatusDetected, StatusNotified, StatusRated))
	return records, err
}

// GetFailedRecords retrieves terminal-failed records for retry sweeps
func (db *Database) GetFailedRecords() ([]*WatchRecord, error) {
	var records []*WatchRecord
	err := db.store.Find(&records, bolthold.Where("Status").Eq(StatusFailed))
	return records, err
}

// GetAllRecords retrieves every record in the ledger
func (db *Database) GetAllRecords() ([]*WatchRecord, error) {
	var records []*WatchRecord
	err := db.store.Find(&records, nil)
	return records, err
}

// Poll cursor operations

// GetCursor retrieves the persisted poll cursor. A missing cursor returns the
// zero time, which callers treat as "poll from now".
func (db *Database) GetCursor() (time.Time, error) {
	var cursor PollCursor
	err := db.store.Get(cursorKey, &cursor)
	if errors.Is(err, bolthold.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return cursor.LastWatchedAt, nil
}

// SaveCursor persists the poll high-water mark
func (db *Database) SaveCursor(lastWatchedAt time.Time) error {
	cursor := PollCursor{
		ID:            cursorKey,
		LastWatchedAt: lastWatchedAt,
		UpdatedAt:     time.Now(),
	}
	if err := db.store.Upsert(cursorKey, &cursor); err != nil {
		return fmt.Errorf("failed to persist poll cursor: %w", err)
	}
	return nil
}
