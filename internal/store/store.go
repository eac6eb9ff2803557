// Package store provides file-backed entity collections with a single-writer
// discipline and a change feed for real-time subscribers.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// Store errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrPersist   = errors.New("persist collection")
	ErrNotLoaded = errors.New("collection not loaded")
)

// ItemStore defines the operations on the item collection.
type ItemStore interface {
	// Load (re)reads the backing file into memory.
	Load(ctx context.Context) error

	// Loaded reports whether the first Load has completed.
	Loaded() bool

	// List returns all items in insertion order.
	List(ctx context.Context) ([]model.Item, error)

	// Get retrieves an item by its ID.
	Get(ctx context.Context, id int) (*model.Item, error)

	// Create assigns the next ID and persists the new item.
	Create(ctx context.Context, fields model.ItemFields) (*model.Item, error)

	// Update merges the patch over an existing item. The ID is kept.
	Update(ctx context.Context, id int, patch model.ItemPatch) (*model.Item, error)

	// Delete removes an item and reports whether anything was removed.
	Delete(ctx context.Context, id int) (bool, error)

	// Subscribe registers fn for every committed change. The returned
	// function removes the subscription.
	Subscribe(fn func(Change[model.Item])) func()

	// View runs fn with the last committed snapshot under the read lock.
	View(fn func(items []model.Item, version uint64))
}

// CartStore defines the operations on the cart collection.
type CartStore interface {
	Load(ctx context.Context) error
	Loaded() bool
	List(ctx context.Context) ([]model.Cart, error)
	Get(ctx context.Context, id int) (*model.Cart, error)

	// Create persists a new empty cart.
	Create(ctx context.Context) (*model.Cart, error)

	// AddLine increments the line for itemID or appends a new one.
	AddLine(ctx context.Context, cartID, itemID int) (*model.Cart, error)
}
