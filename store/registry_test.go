package store_test

import (
	"sync"
	"testing"

	"github.com/jacentio/antler/store"
)

func TestNewRegistry(t *testing.T) {
	r := store.NewRegistry()
	if r == nil {
		t.Fatal("expected non-nil Registry")
	}
	if len(r.Stores()) != 0 {
		t.Errorf("expected empty registry, got %v", r.Stores())
	}
}

func TestRegistry_Register(t *testing.T) {
	r := store.NewRegistry()

	r.Register(store.Declaration{
		Store:    "organizations",
		Siblings: []store.Edge{{Store: "org_settings", OnDelete: store.BehaviorCascade}},
		Children: []store.Edge{{Store: "studios", OnDelete: store.BehaviorError}},
	})

	decl, ok := r.Lookup("organizations")
	if !ok {
		t.Fatal("expected organizations to be registered")
	}
	if len(decl.Siblings) != 1 || decl.Siblings[0].Store != "org_settings" {
		t.Errorf("unexpected siblings %v", decl.Siblings)
	}
	if len(decl.Children) != 1 || decl.Children[0].OnDelete != store.BehaviorError {
		t.Errorf("unexpected children %v", decl.Children)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := store.NewRegistry()

	r.Register(store.Declaration{
		Store:    "studios",
		Children: []store.Edge{{Store: "titles", OnDelete: store.BehaviorError}},
	})
	r.Register(store.Declaration{
		Store:    "studios",
		Children: []store.Edge{{Store: "titles", OnDelete: store.BehaviorCascade}},
	})

	children := r.ChildrenOf("studios")
	if len(children) != 1 {
		t.Fatalf("expected 1 child edge, got %d", len(children))
	}
	if children[0].OnDelete != store.BehaviorCascade {
		t.Errorf("expected cascade, got %v", children[0].OnDelete)
	}
}

func TestRegistry_RegisterCopiesEdges(t *testing.T) {
	r := store.NewRegistry()
	edges := []store.Edge{{Store: "titles", OnDelete: store.BehaviorCascade}}

	r.Register(store.Declaration{Store: "studios", Children: edges})
	edges[0].Store = "mutated"

	if got := r.ChildrenOf("studios")[0].Store; got != "titles" {
		t.Errorf("expected registered edge to be unaffected, got %q", got)
	}
}

func TestRegistry_IsRegistered(t *testing.T) {
	r := store.NewRegistry()
	r.Register(store.Declaration{Store: "tags"})

	if !r.IsRegistered("tags") {
		t.Error("expected tags to be registered")
	}
	if r.IsRegistered("drafts") {
		t.Error("expected drafts to be unregistered")
	}
	if len(r.SiblingsOf("tags")) != 0 {
		t.Error("expected no siblings for tags")
	}
	if len(r.ChildrenOf("drafts")) != 0 {
		t.Error("expected no children for an unregistered store")
	}
}

func TestRegistry_Stores(t *testing.T) {
	r := store.NewRegistry()
	r.Register(store.Declaration{Store: "titles"})
	r.Register(store.Declaration{Store: "organizations"})
	r.Register(store.Declaration{Store: "studios"})

	stores := r.Stores()
	expected := []string{"organizations", "studios", "titles"}
	if len(stores) != len(expected) {
		t.Fatalf("expected %d stores, got %d", len(expected), len(stores))
	}
	for i, name := range expected {
		if stores[i] != name {
			t.Errorf("stores[%d] = %q, want %q", i, stores[i], name)
		}
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := store.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(store.Declaration{Store: "organizations"})
		}()
		go func() {
			defer wg.Done()
			r.IsRegistered("organizations")
		}()
	}
	wg.Wait()

	if !r.IsRegistered("organizations") {
		t.Error("expected organizations to be registered")
	}
}

func TestDeletionBehavior_String(t *testing.T) {
	tests := []struct {
		behavior store.DeletionBehavior
		expected string
	}{
		{store.BehaviorCascade, "cascade"},
		{store.BehaviorError, "error"},
		{store.BehaviorBreakLink, "break-link"},
		{store.DeletionBehavior(9), "DeletionBehavior(9)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.behavior.String(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCollection_Register(t *testing.T) {
	f := newFixture(t)
	r := f.store.Registry()

	siblings := r.SiblingsOf("organizations")
	if len(siblings) != 3 {
		t.Fatalf("expected 3 sibling edges, got %d", len(siblings))
	}
	if siblings[1].Store != "org_billing" || siblings[1].OnDelete != store.BehaviorError {
		t.Errorf("unexpected sibling edge %+v", siblings[1])
	}

	children := r.ChildrenOf("organizations")
	if len(children) != 1 || children[0].Store != "studios" {
		t.Errorf("unexpected child edges %+v", children)
	}

	if !r.IsRegistered("tags") {
		t.Error("expected entity without relations to be registered")
	}
	if r.IsRegistered("drafts") {
		t.Error("expected drafts to stay unregistered")
	}
}
