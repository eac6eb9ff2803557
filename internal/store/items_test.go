package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/vyrodovalexey/storefront/internal/model"
)

func newTestItemStore(t *testing.T) (*FileItemStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "products.json")
	s := NewFileItemStore(path, zap.NewNop())
	require.NoError(t, s.Load(context.Background()))

	return s, path
}

func sampleFields(title string) model.ItemFields {
	return model.ItemFields{
		Title:       title,
		Description: "d",
		Price:       10,
		Stock:       1,
		Category:    "c",
	}
}

func TestFileItemStore_Create_AssignsSequentialIDs(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	ctx := context.Background()

	// Act
	first, err := s.Create(ctx, sampleFields("A"))
	require.NoError(t, err)
	second, err := s.Create(ctx, sampleFields("B"))
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, "A", first.Title)
}

func TestFileItemStore_DeleteThenList(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, sampleFields("A"))
	require.NoError(t, err)
	_, err = s.Create(ctx, sampleFields("B"))
	require.NoError(t, err)

	// Act
	removed, err := s.Delete(ctx, 1)
	require.NoError(t, err)
	items, err := s.List(ctx)
	require.NoError(t, err)

	// Assert
	assert.True(t, removed)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].ID)
	assert.Equal(t, "B", items[0].Title)
}

func TestFileItemStore_IDsNotReusedAfterDeletingHighest(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, sampleFields("A"))
	_, _ = s.Create(ctx, sampleFields("B"))

	// Act
	_, err := s.Delete(ctx, 2)
	require.NoError(t, err)
	third, err := s.Create(ctx, sampleFields("C"))
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 3, third.ID)
}

func TestFileItemStore_Delete_AbsentLeavesFileUnchanged(t *testing.T) {
	// Arrange
	s, path := newTestItemStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, sampleFields("A"))
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)

	// Act
	removed, err := s.Delete(ctx, 99)

	// Assert
	require.NoError(t, err)
	assert.False(t, removed)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	infoAfter, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), infoAfter.ModTime())
}

func TestFileItemStore_Update_MergesGivenFieldsOnly(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, sampleFields("A"))
	require.NoError(t, err)
	price := 42.5

	// Act
	updated, err := s.Update(ctx, created.ID, model.ItemPatch{Price: &price})
	require.NoError(t, err)

	// Assert
	want := *created
	want.Price = price
	assert.Equal(t, want, *updated)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestFileItemStore_Update_NotFound(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	price := 1.0

	// Act
	updated, err := s.Update(context.Background(), 7, model.ItemPatch{Price: &price})

	// Assert
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, updated)
}

func TestFileItemStore_Get_NotFound(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)

	// Act
	item, err := s.Get(context.Background(), 999)

	// Assert
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, item)
}

func TestFileItemStore_PersistsAcrossReload(t *testing.T) {
	// Arrange
	s, path := newTestItemStore(t)
	ctx := context.Background()
	for _, title := range []string{"A", "B", "C"} {
		_, err := s.Create(ctx, sampleFields(title))
		require.NoError(t, err)
	}

	// Act
	reloaded := NewFileItemStore(path, zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))
	items, err := reloaded.List(ctx)
	require.NoError(t, err)
	next, err := reloaded.Create(ctx, sampleFields("D"))
	require.NoError(t, err)

	// Assert
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i+1, item.ID)
	}
	assert.Equal(t, 4, next.ID)
}

func TestFileItemStore_WritesBeforeLoadAreRejected(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "products.json")
	existing := `[
  {"id": 1, "title": "A", "description": "d", "price": 1, "stock": 1, "category": "c"},
  {"id": 2, "title": "B", "description": "d", "price": 2, "stock": 2, "category": "c"}
]`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))
	s := NewFileItemStore(path, zap.NewNop())
	ctx := context.Background()
	title := "changed"

	// Act
	created, createErr := s.Create(ctx, sampleFields("early"))
	_, updateErr := s.Update(ctx, 1, model.ItemPatch{Title: &title})
	removed, deleteErr := s.Delete(ctx, 2)

	// Assert
	assert.ErrorIs(t, createErr, ErrNotLoaded)
	assert.Nil(t, created)
	assert.ErrorIs(t, updateErr, ErrNotLoaded)
	assert.ErrorIs(t, deleteErr, ErrNotLoaded)
	assert.False(t, removed)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, existing, string(content), "file must not be touched before Load")

	require.NoError(t, s.Load(ctx))
	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Title)

	next, err := s.Create(ctx, sampleFields("C"))
	require.NoError(t, err)
	assert.Equal(t, 3, next.ID)
}

func TestFileItemStore_RestartDerivesNextIDFromFile(t *testing.T) {
	// Arrange
	s, path := newTestItemStore(t)
	ctx := context.Background()
	for _, title := range []string{"A", "B", "C"} {
		_, err := s.Create(ctx, sampleFields(title))
		require.NoError(t, err)
	}
	removed, err := s.Delete(ctx, 3)
	require.NoError(t, err)
	require.True(t, removed)

	// Act
	restarted := NewFileItemStore(path, zap.NewNop())
	require.NoError(t, restarted.Load(ctx))
	next, err := restarted.Create(ctx, sampleFields("D"))

	// Assert
	// The file carries no counter, so a new process only knows the ids
	// still on disk. Within one process id 3 would not come back.
	require.NoError(t, err)
	assert.Equal(t, 3, next.ID)
}

func TestFileItemStore_Load_MissingFileIsEmpty(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "absent", "products.json")
	s := NewFileItemStore(path, zap.NewNop())

	// Act
	err := s.Load(context.Background())

	// Assert
	require.NoError(t, err)
	assert.True(t, s.Loaded())
	items, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFileItemStore_Load_MalformedFileIsEmptyAndMovedAside(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s := NewFileItemStore(path, zap.NewNop())

	// Act
	err := s.Load(context.Background())

	// Assert
	require.NoError(t, err)
	items, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "malformed file should be moved aside")

	moved, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, moved, 1)
	content, err := os.ReadFile(moved[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(content))
}

func TestFileItemStore_Create_WriteFailurePropagates(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	s := NewFileItemStore(filepath.Join(blocker, "products.json"), zap.NewNop())
	require.NoError(t, s.Load(context.Background()))

	var changes int
	s.Subscribe(func(Change[model.Item]) { changes++ })

	// Act
	item, err := s.Create(context.Background(), sampleFields("A"))

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Nil(t, item)
	assert.Zero(t, changes, "a failed write must not be published")

	items, listErr := s.List(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, items, "a failed write must not be committed")
}

func TestFileItemStore_ContextCancellation(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	_, createErr := s.Create(ctx, sampleFields("A"))
	_, listErr := s.List(ctx)
	_, deleteErr := s.Delete(ctx, 1)

	// Assert
	assert.ErrorIs(t, createErr, context.Canceled)
	assert.ErrorIs(t, listErr, context.Canceled)
	assert.ErrorIs(t, deleteErr, context.Canceled)
}

func TestFileItemStore_ConcurrentCreates_NoLostUpdate(t *testing.T) {
	// Arrange
	s, path := newTestItemStore(t)
	ctx := context.Background()
	const workers = 50

	var wg sync.WaitGroup
	ids := make(chan int, workers)

	// Act
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := s.Create(ctx, sampleFields("concurrent"))
			if err == nil {
				ids <- item.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	// Assert
	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)

	reloaded := NewFileItemStore(path, zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))
	items, err := reloaded.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, workers)
}

func TestFileItemStore_Subscribe_OrderedSnapshots(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var changes []Change[model.Item]
	unsubscribe := s.Subscribe(func(c Change[model.Item]) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Create(ctx, sampleFields("x"))
		}()
	}
	wg.Wait()
	_, err := s.Delete(ctx, 1)
	require.NoError(t, err)
	unsubscribe()
	_, err = s.Create(ctx, sampleFields("after unsubscribe"))
	require.NoError(t, err)

	// Assert
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 21)
	for i, c := range changes[:20] {
		assert.Equal(t, ChangeCreated, c.Kind)
		assert.Len(t, c.Snapshot, i+1, "snapshot %d should hold every earlier create", i)
		if i > 0 {
			assert.Greater(t, c.Version, changes[i-1].Version)
		}
	}
	last := changes[20]
	assert.Equal(t, ChangeDeleted, last.Kind)
	assert.Equal(t, 1, last.Entity.ID)
	assert.Len(t, last.Snapshot, 19)
}

func TestFileItemStore_View_SeesCommittedState(t *testing.T) {
	// Arrange
	s, _ := newTestItemStore(t)
	_, err := s.Create(context.Background(), sampleFields("A"))
	require.NoError(t, err)

	// Act
	var got []model.Item
	var version uint64
	s.View(func(items []model.Item, v uint64) {
		got = append(got, items...)
		version = v
	})

	// Assert
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Title)
	assert.NotZero(t, version)
}

func TestFileItemStore_FileLayout(t *testing.T) {
	// Arrange
	s, path := newTestItemStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, sampleFields("A"))
	require.NoError(t, err)
	_, err = s.Create(ctx, model.ItemFields{
		Title:       "B",
		Description: "second",
		Price:       2.5,
		Stock:       0,
		Category:    "c",
		Thumbnail:   "b.png",
	})
	require.NoError(t, err)

	// Act
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Assert
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "products", data)
}

func TestFileItemStore_IDMonotonicity_Property(t *testing.T) {
	root := t.TempDir()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(rt, "creates")

		dir, err := os.MkdirTemp(root, "prop-*")
		if err != nil {
			rt.Fatalf("mkdir: %v", err)
		}
		path := filepath.Join(dir, "products.json")
		ctx := context.Background()

		s := NewFileItemStore(path, zap.NewNop())
		if err := s.Load(ctx); err != nil {
			rt.Fatalf("load: %v", err)
		}
		for i := 1; i <= n; i++ {
			item, err := s.Create(ctx, sampleFields("p"))
			if err != nil {
				rt.Fatalf("create: %v", err)
			}
			if item.ID != i {
				rt.Fatalf("create %d got id %d", i, item.ID)
			}
		}

		reloaded := NewFileItemStore(path, zap.NewNop())
		if err := reloaded.Load(ctx); err != nil {
			rt.Fatalf("reload: %v", err)
		}
		items, _ := reloaded.List(ctx)
		if len(items) != n {
			rt.Fatalf("reloaded %d items, want %d", len(items), n)
		}
		for i, item := range items {
			if item.ID != i+1 {
				rt.Fatalf("position %d has id %d", i, item.ID)
			}
		}
	})
}

func TestFileItemStore_ImplementsInterface(t *testing.T) {
	var _ ItemStore = (*FileItemStore)(nil)
}
