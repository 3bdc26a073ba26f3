package kernel_test

import (
	"context"
	"testing"

	"github.com/Abraxas-365/custodia/pkg/kernel"
)

type record struct {
	ID    string
	Value int
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := kernel.NewMemoryStore[record]()

	if _, err := store.Find(ctx, "a"); err != kernel.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := store.Create(ctx, "a", record{ID: "a", Value: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Find(ctx, "a")
	if err != nil || got.Value != 1 {
		t.Fatalf("find: %+v, %v", got, err)
	}

	// Create overwrites.
	if err := store.Create(ctx, "a", record{ID: "a", Value: 2}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = store.Find(ctx, "a")
	if got.Value != 2 {
		t.Fatalf("want overwritten value 2, got %d", got.Value)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("deleting a missing id must not error: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("want empty store, got %d", store.Len())
	}
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	store := kernel.NewMemoryStore[record]()
	for i, id := range []string{"a", "b", "c"} {
		_ = store.Create(ctx, id, record{ID: id, Value: i})
	}

	matches, err := store.Query(ctx, func(r record) bool { return r.Value > 0 })
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("want 2 matches, got %d", len(matches))
	}
}

func TestAuthContextRoundTrip(t *testing.T) {
	ac := &kernel.AuthContext{
		UserID:   "user-1",
		ClientID: "client-1",
		TenantID: "tenant-1",
		Scopes:   []string{"identity:profile:read"},
	}
	if !ac.IsValid() {
		t.Fatal("complete context must be valid")
	}

	ctx := kernel.WithAuthContext(context.Background(), ac)
	got, ok := kernel.AuthContextFrom(ctx)
	if !ok || got != ac {
		t.Fatal("context round trip failed")
	}

	if _, ok := kernel.AuthContextFrom(context.Background()); ok {
		t.Fatal("empty context must not yield an identity")
	}
}
