package calibrate

import "github.com/ragcore/retrieval-engine/internal/model"

// MemoryCache is an in-memory snapshot of every persisted calibration matrix,
// satisfying embedregistry.CalibrationSource's synchronous Get. Calibration
// fitting happens out of the request path (see Fit), so the registry never
// needs to hit Badger on a query.
type MemoryCache struct {
	matrices map[string]model.CalibrationMatrix
}

// NewMemoryCache loads every matrix currently in store into memory.
func NewMemoryCache(store *Store) (*MemoryCache, error) {
	m, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	return &MemoryCache{matrices: m}, nil
}

func (c *MemoryCache) Get(name string) (model.CalibrationMatrix, bool) {
	m, ok := c.matrices[name]
	return m, ok
}

// Put refreshes a single matrix, used after a fitting pass persists a new
// version without requiring a full reload.
func (c *MemoryCache) Put(m model.CalibrationMatrix) {
	c.matrices[m.PremiumName] = m
}
