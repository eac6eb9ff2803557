package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/model"
)

func BenchmarkFileItemStore_Create(b *testing.B) {
	s := NewFileItemStore(filepath.Join(b.TempDir(), "products.json"), zap.NewNop())
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		b.Fatal(err)
	}
	fields := model.ItemFields{Title: "bench", Description: "d", Price: 1, Stock: 1, Category: "c"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Create(ctx, fields); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFileItemStore_Get(b *testing.B) {
	s := NewFileItemStore(filepath.Join(b.TempDir(), "products.json"), zap.NewNop())
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if _, err := s.Create(ctx, model.ItemFields{Title: "t", Description: "d", Category: "c"}); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		id := 1
		for pb.Next() {
			if _, err := s.Get(ctx, id); err != nil {
				b.Error(err)
				return
			}
			id = id%100 + 1
		}
	})
}
