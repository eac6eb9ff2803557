package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Entity is a value with an integer identifier owned by the collection.
type Entity[T any] interface {
	EntityID() int
	WithID(id int) T
}

// ChangeKind identifies what a committed mutation did.
type ChangeKind string

// Change kinds.
const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReloaded ChangeKind = "reloaded"
)

// Change describes one committed mutation. Snapshot is the full collection
// right after the mutation and must be treated as read-only.
type Change[T any] struct {
	Kind     ChangeKind
	Entity   T
	Snapshot []T
	Version  uint64
}

// Collection is an ordered set of entities persisted as one JSON file.
//
// The in-memory copy is authoritative. Mutations run under the write lock:
// the next state is computed, written to disk, then committed and published.
// A failed write leaves the in-memory copy untouched. Committed slices are
// never modified in place, so snapshots handed out remain valid. Writes are
// refused with ErrNotLoaded until Load has run, since an empty copy would
// otherwise overwrite the file.
type Collection[T Entity[T]] struct {
	name   string
	path   string
	logger *zap.Logger
	tracer trace.Tracer

	mu      sync.RWMutex
	entries []T
	index   map[int]int // id -> position in entries
	lastID  int         // highest id ever seen or assigned
	version uint64
	loaded  bool

	subMu   sync.Mutex
	subs    map[int]func(Change[T])
	nextSub int
}

// NewCollection creates an empty collection backed by path. Call Load to read
// the file.
func NewCollection[T Entity[T]](name, path string, logger *zap.Logger) *Collection[T] {
	return &Collection[T]{
		name:   name,
		path:   path,
		logger: logger.With(zap.String("collection", name), zap.String("path", path)),
		tracer: otel.Tracer("storefront/store"),
		index:  make(map[int]int),
		subs:   make(map[int]func(Change[T])),
	}
}

// Path returns the backing file location.
func (c *Collection[T]) Path() string {
	return c.path
}

// Load replaces the in-memory copy with the file content. A missing,
// unreadable or malformed file yields an empty collection; the cause is
// logged but never returned. Only context cancellation is reported.
func (c *Collection[T]) Load(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("load %s: %w", c.name, ctx.Err())
	default:
	}

	_, span := c.tracer.Start(ctx, "store.load", c.spanAttrs())
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.readOrEmpty()

	c.commit(entries)
	c.loaded = true
	c.publish(ChangeReloaded, *new(T))

	c.logger.Info("collection loaded", zap.Int("entries", len(entries)), zap.Int("last_id", c.lastID))
	return nil
}

// readOrEmpty reads the backing file, absorbing every failure.
func (c *Collection[T]) readOrEmpty() []T {
	entries, err := readCollection[T](c.path)
	if err == nil {
		return entries
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Info("collection file not found, starting empty")
	case isSyntaxError(err):
		loadFailuresTotal.WithLabelValues(c.name, "malformed").Inc()
		moved, qErr := quarantine(c.path)
		if qErr != nil {
			c.logger.Warn("malformed collection file, starting empty", zap.Error(err), zap.NamedError("quarantine_error", qErr))
		} else {
			c.logger.Warn("malformed collection file moved aside, starting empty",
				zap.Error(err),
				zap.String("moved_to", moved),
			)
		}
	default:
		loadFailuresTotal.WithLabelValues(c.name, "unreadable").Inc()
		c.logger.Warn("unreadable collection file, starting empty", zap.Error(err))
	}

	return nil
}

// Loaded reports whether Load has completed at least once.
func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// List returns a copy of the collection in insertion order.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list %s: %w", c.name, ctx.Err())
	default:
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

// Get returns the entity with the given id.
func (c *Collection[T]) Get(ctx context.Context, id int) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("get %s: %w", c.name, ctx.Err())
	default:
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.index[id]
	if !ok {
		return zero, ErrNotFound
	}
	return c.entries[pos], nil
}

// View calls fn with the last committed snapshot while holding the read
// lock, so no mutation can be committed or published until fn returns.
func (c *Collection[T]) View(fn func(snapshot []T, version uint64)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.entries, c.version)
}

// Insert assigns the next id, builds the entity and persists the collection.
func (c *Collection[T]) Insert(ctx context.Context, build func(id int) T) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("insert %s: %w", c.name, ctx.Err())
	default:
	}

	ctx, span := c.tracer.Start(ctx, "store.insert", c.spanAttrs())
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return zero, fmt.Errorf("insert %s: %w", c.name, ErrNotLoaded)
	}

	id := c.lastID + 1
	entity := build(id).WithID(id)

	next := make([]T, len(c.entries), len(c.entries)+1)
	copy(next, c.entries)
	next = append(next, entity)

	if err := c.persist(ctx, next); err != nil {
		recordSpanError(span, err)
		return zero, fmt.Errorf("insert %s: %w", c.name, err)
	}

	c.commit(next)
	c.publish(ChangeCreated, entity)
	span.SetAttributes(attribute.Int("entity.id", id))

	return entity, nil
}

// Update applies mutate to a copy of the entity with the given id and
// persists the collection. The id cannot be changed by mutate.
func (c *Collection[T]) Update(ctx context.Context, id int, mutate func(*T)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("update %s: %w", c.name, ctx.Err())
	default:
	}

	ctx, span := c.tracer.Start(ctx, "store.update", c.spanAttrs(attribute.Int("entity.id", id)))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return zero, fmt.Errorf("update %s: %w", c.name, ErrNotLoaded)
	}

	pos, ok := c.index[id]
	if !ok {
		return zero, ErrNotFound
	}

	entity := c.entries[pos]
	mutate(&entity)
	entity = entity.WithID(id)

	next := slices.Clone(c.entries)
	next[pos] = entity

	if err := c.persist(ctx, next); err != nil {
		recordSpanError(span, err)
		return zero, fmt.Errorf("update %s: %w", c.name, err)
	}

	c.commit(next)
	c.publish(ChangeUpdated, entity)

	return entity, nil
}

// Delete removes the entity with the given id. When nothing matches it
// returns false and leaves the file untouched.
func (c *Collection[T]) Delete(ctx context.Context, id int) (bool, error) {
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("delete %s: %w", c.name, ctx.Err())
	default:
	}

	ctx, span := c.tracer.Start(ctx, "store.delete", c.spanAttrs(attribute.Int("entity.id", id)))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return false, fmt.Errorf("delete %s: %w", c.name, ErrNotLoaded)
	}

	pos, ok := c.index[id]
	if !ok {
		return false, nil
	}

	removed := c.entries[pos]
	next := make([]T, 0, len(c.entries)-1)
	next = append(next, c.entries[:pos]...)
	next = append(next, c.entries[pos+1:]...)

	if err := c.persist(ctx, next); err != nil {
		recordSpanError(span, err)
		return false, fmt.Errorf("delete %s: %w", c.name, err)
	}

	c.commit(next)
	c.publish(ChangeDeleted, removed)

	return true, nil
}

// Subscribe registers fn for every committed change, including reloads.
// fn runs while the collection's write lock is held: it must not block and
// must not call back into the collection.
func (c *Collection[T]) Subscribe(fn func(Change[T])) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// persist writes next to disk. Caller must hold the write lock.
func (c *Collection[T]) persist(ctx context.Context, next []T) error {
	_, span := c.tracer.Start(ctx, "store.persist", c.spanAttrs(attribute.Int("entries", len(next))))
	defer span.End()

	start := time.Now()
	err := writeCollection(c.path, next)
	persistDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	if err != nil {
		persistErrorsTotal.WithLabelValues(c.name).Inc()
		c.logger.Error("failed to persist collection", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// commit installs next as the authoritative copy. Caller must hold the
// write lock.
func (c *Collection[T]) commit(next []T) {
	index := make(map[int]int, len(next))
	for pos, e := range next {
		id := e.EntityID()
		if _, dup := index[id]; dup {
			c.logger.Warn("duplicate id in collection, first entry wins", zap.Int("id", id))
			continue
		}
		index[id] = pos
		if id > c.lastID {
			c.lastID = id
		}
	}

	c.entries = next
	c.index = index
	c.version++
	collectionSize.WithLabelValues(c.name).Set(float64(len(next)))
}

// publish notifies subscribers. Caller must hold the write lock.
func (c *Collection[T]) publish(kind ChangeKind, entity T) {
	if kind != ChangeReloaded {
		mutationsTotal.WithLabelValues(c.name, string(kind)).Inc()
	}

	change := Change[T]{
		Kind:     kind,
		Entity:   entity,
		Snapshot: c.entries,
		Version:  c.version,
	}

	c.subMu.Lock()
	subs := make([]func(Change[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

func (c *Collection[T]) spanAttrs(extra ...attribute.KeyValue) trace.SpanStartOption {
	attrs := append([]attribute.KeyValue{attribute.String("collection", c.name)}, extra...)
	return trace.WithAttributes(attrs...)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
