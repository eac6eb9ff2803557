package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// FileCartStore implements CartStore on top of a JSON file.
type FileCartStore struct {
	coll *Collection[model.Cart]
}

// NewFileCartStore creates a cart store backed by path.
func NewFileCartStore(path string, logger *zap.Logger) *FileCartStore {
	return &FileCartStore{
		coll: NewCollection[model.Cart]("carts", path, logger),
	}
}

// Load reads the backing file into memory.
func (s *FileCartStore) Load(ctx context.Context) error {
	return s.coll.Load(ctx)
}

// Loaded reports whether the first Load has completed.
func (s *FileCartStore) Loaded() bool {
	return s.coll.Loaded()
}

// List returns all carts.
func (s *FileCartStore) List(ctx context.Context) ([]model.Cart, error) {
	return s.coll.List(ctx)
}

// Get retrieves a cart by its ID.
func (s *FileCartStore) Get(ctx context.Context, id int) (*model.Cart, error) {
	cart, err := s.coll.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create persists a new cart with no lines.
func (s *FileCartStore) Create(ctx context.Context) (*model.Cart, error) {
	cart, err := s.coll.Insert(ctx, func(id int) model.Cart {
		return model.Cart{ID: id, Products: []model.Line{}}
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddLine adds one unit of itemID to the cart. The item is not required to
// exist in the catalog.
func (s *FileCartStore) AddLine(ctx context.Context, cartID, itemID int) (*model.Cart, error) {
	cart, err := s.coll.Update(ctx, cartID, func(c *model.Cart) {
		*c = c.AddLine(itemID)
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}
