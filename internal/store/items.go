package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// FileItemStore implements ItemStore on top of a JSON file.
type FileItemStore struct {
	coll *Collection[model.Item]
}

// NewFileItemStore creates an item store backed by path.
func NewFileItemStore(path string, logger *zap.Logger) *FileItemStore {
	return &FileItemStore{
		coll: NewCollection[model.Item]("items", path, logger),
	}
}

// Load reads the backing file into memory.
func (s *FileItemStore) Load(ctx context.Context) error {
	return s.coll.Load(ctx)
}

// Loaded reports whether the first Load has completed.
func (s *FileItemStore) Loaded() bool {
	return s.coll.Loaded()
}

// List returns all items.
func (s *FileItemStore) List(ctx context.Context) ([]model.Item, error) {
	return s.coll.List(ctx)
}

// Get retrieves an item by its ID.
func (s *FileItemStore) Get(ctx context.Context, id int) (*model.Item, error) {
	item, err := s.coll.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create adds a new item and returns it with its assigned ID.
func (s *FileItemStore) Create(ctx context.Context, fields model.ItemFields) (*model.Item, error) {
	item, err := s.coll.Insert(ctx, fields.Item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Update merges the patch over the stored item.
func (s *FileItemStore) Update(ctx context.Context, id int, patch model.ItemPatch) (*model.Item, error) {
	item, err := s.coll.Update(ctx, id, patch.Apply)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes an item by its ID.
func (s *FileItemStore) Delete(ctx context.Context, id int) (bool, error) {
	return s.coll.Delete(ctx, id)
}

// Subscribe registers fn for every committed change to the items.
func (s *FileItemStore) Subscribe(fn func(Change[model.Item])) func() {
	return s.coll.Subscribe(fn)
}

// View runs fn against the current snapshot under the read lock.
func (s *FileItemStore) View(fn func(items []model.Item, version uint64)) {
	s.coll.View(fn)
}
