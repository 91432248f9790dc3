package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/shared"
)

// CollectionStore persists the station collection as a single JSON file.
type CollectionStore struct {
	path string
}

// NewCollectionStore creates a store backed by the file at path
func NewCollectionStore(path string) *CollectionStore {
	return &CollectionStore{path: path}
}

func (s *CollectionStore) Path() string { return s.path }

// Load reads the collection. A missing file yields an empty collection dated [shared.DefaultDate].
func (s *CollectionStore) Load() (models.Collection, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		c := models.NewCollection()
		c.ModificationDate = shared.DefaultDate
		return c, nil
	}
	if err != nil {
		return models.Collection{}, fmt.Errorf("failed to read collection: %w", err)
	}

	var c models.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return models.Collection{}, fmt.Errorf("failed to decode collection %s: %w", s.path, err)
	}
	if c.Stations == nil {
		c.Stations = []models.Station{}
	}
	return c, nil
}

// Save writes the whole collection, replacing the previous file atomically.
func (s *CollectionStore) Save(c models.Collection) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}
