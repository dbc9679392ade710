package calibrate

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// Store persists calibration matrices on disk by premium embedder name,
// grounded on straga-Mimir_lite's use of badger as an embedded KV engine.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a Badger store at dataDir. Pass dataDir == ""
// for an in-memory store, useful in tests.
func Open(dataDir string) (*Store, error) {
	opts := badger.DefaultOptions(dataDir)
	if dataDir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("calibrate.Open: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(premiumName string) []byte {
	return []byte("calibration:" + premiumName)
}

// Save persists a fitted matrix under its premium embedder identity.
func (s *Store) Save(m model.CalibrationMatrix) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("calibrate.Store.Save: marshal: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(m.PremiumName), payload)
	})
}

// Load retrieves the matrix for a premium embedder name; returns
// (zero, false, nil) if none has been fitted yet.
func (s *Store) Load(premiumName string) (model.CalibrationMatrix, bool, error) {
	var m model.CalibrationMatrix
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(premiumName))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &m); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return model.CalibrationMatrix{}, false, fmt.Errorf("calibrate.Store.Load: %w", err)
	}
	return m, found, nil
}

// LoadAll returns every persisted matrix, keyed by premium embedder name —
// used by NewMemoryCache to build the registry's calibration snapshot at
// startup.
func (s *Store) LoadAll() (map[string]model.CalibrationMatrix, error) {
	out := make(map[string]model.CalibrationMatrix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("calibration:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var m model.CalibrationMatrix
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out[m.PremiumName] = m
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calibrate.Store.LoadAll: %w", err)
	}
	return out, nil
}
