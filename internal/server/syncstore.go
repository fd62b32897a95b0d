package server

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
)

// SyncStore is the server-side copy of every club's pushed document,
// one record set per slug. Slugs are validated by the handlers before
// they reach the store, so keys are always printable and bounded.
type SyncStore struct {
	db *badger.DB
}

// NewSyncStore wraps an open Badger database.
func NewSyncStore(db *badger.DB) *SyncStore {
	return &SyncStore{db: db}
}

// OpenSyncStore opens the Badger database at dir. Badger's own logger
// is silenced, it logs through levels we do not control.
func OpenSyncStore(dir string) (*SyncStore, func() error, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sync database: %w", err)
	}
	return NewSyncStore(db), db.Close, nil
}

func eventsKey(slug string) []byte      { return []byte("events:" + slug) }
func validationsKey(slug string) []byte { return []byte("validations:" + slug) }
func currentKey(slug string) []byte     { return []byte("current:" + slug) }

// Put replaces the slug's stored document in one transaction.
func (s *SyncStore) Put(slug string, data *model.StorageData) error {
	events, err := json.Marshal(data.Events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}
	validations, err := json.Marshal(data.Validations)
	if err != nil {
		return fmt.Errorf("failed to encode validations: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventsKey(slug), events); err != nil {
			return err
		}
		if err := txn.Set(validationsKey(slug), validations); err != nil {
			return err
		}
		return txn.Set(currentKey(slug), []byte(data.CurrentEventID))
	})
	if err != nil {
		return fmt.Errorf("failed to store sync data for %s: %w", slug, err)
	}
	return nil
}

// Get returns the slug's stored document. A slug that was never pushed
// reads as an empty document, not an error.
func (s *SyncStore) Get(slug string) (*model.StorageData, error) {
	data := model.NewStorageData()

	err := s.db.View(func(txn *badger.Txn) error {
		if raw, ok, err := getValue(txn, eventsKey(slug)); err != nil {
			return err
		} else if ok {
			if err := json.Unmarshal(raw, &data.Events); err != nil {
				return fmt.Errorf("corrupt events record: %w", err)
			}
		}
		if raw, ok, err := getValue(txn, validationsKey(slug)); err != nil {
			return err
		} else if ok {
			if err := json.Unmarshal(raw, &data.Validations); err != nil {
				return fmt.Errorf("corrupt validations record: %w", err)
			}
		}
		if raw, ok, err := getValue(txn, currentKey(slug)); err != nil {
			return err
		} else if ok {
			data.CurrentEventID = string(raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sync data for %s: %w", slug, err)
	}
	return data, nil
}

func getValue(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
