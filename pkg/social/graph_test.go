package social

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func TestGraph_GrantAndScope(t *testing.T) {
	g := NewGraph(nil)
	ctx := context.Background()

	if err := g.Grant(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	scope := g.ScopeFor("bob")
	if len(scope) != 1 || scope[0] != "alice" {
		t.Errorf("expected bob to amplify from [alice], got %v", scope)
	}
	if got := g.ScopeFor("alice"); got != nil {
		t.Errorf("expected empty scope for alice, got %v", got)
	}

	readers := g.ReadersOf("alice")
	if len(readers) != 1 || readers[0] != "bob" {
		t.Errorf("expected alice's readers [bob], got %v", readers)
	}
}

func TestGraph_GrantIdempotent(t *testing.T) {
	g := NewGraph(nil)
	ctx := context.Background()

	g.Grant(ctx, "alice", "bob")
	if err := g.Grant(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	if got := g.ScopeFor("bob"); len(got) != 1 {
		t.Errorf("expected one grantor, got %v", got)
	}
}

func TestGraph_SelfEdgeRejected(t *testing.T) {
	g := NewGraph(nil)

	if err := g.Grant(context.Background(), "alice", "alice"); err != ErrSelfEdge {
		t.Errorf("expected ErrSelfEdge, got %v", err)
	}
}

func TestGraph_EmptyUserRejected(t *testing.T) {
	g := NewGraph(nil)

	if err := g.Grant(context.Background(), "", "bob"); err != ErrInvalidUser {
		t.Errorf("expected ErrInvalidUser, got %v", err)
	}
	if err := g.Revoke(context.Background(), "alice", ""); err != ErrInvalidUser {
		t.Errorf("expected ErrInvalidUser, got %v", err)
	}
}

func TestGraph_RevokeRemovesBothViews(t *testing.T) {
	g := NewGraph(nil)
	ctx := context.Background()

	g.Grant(ctx, "alice", "bob")
	g.Grant(ctx, "alice", "carol")

	if err := g.Revoke(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	if g.HasEdge("alice", "bob") {
		t.Error("edge alice->bob should be gone")
	}
	if got := g.ScopeFor("bob"); got != nil {
		t.Errorf("bob's scope should be empty, got %v", got)
	}
	if got := g.ReadersOf("alice"); len(got) != 1 || got[0] != "carol" {
		t.Errorf("expected alice's readers [carol], got %v", got)
	}
}

func TestGraph_RevokeMissingEdgeNoop(t *testing.T) {
	g := NewGraph(nil)

	if err := g.Revoke(context.Background(), "alice", "bob"); err != nil {
		t.Errorf("revoking a missing edge should be a no-op, got %v", err)
	}
}

// The two views must agree at every observable point, under any interleaving
// of grants and revokes.
func TestGraph_ViewsNeverDiverge(t *testing.T) {
	g := NewGraph(nil)
	ctx := context.Background()

	users := []string{"u0", "u1", "u2", "u3"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				a := users[(seed+n)%len(users)]
				b := users[(seed+n+1)%len(users)]
				if n%3 == 0 {
					g.Revoke(ctx, a, b)
				} else {
					g.Grant(ctx, a, b)
				}
			}
		}(i)
	}
	wg.Wait()

	// Every exposedTo edge must appear in the inverse view and vice versa.
	for _, grantor := range users {
		for _, grantee := range g.ReadersOf(grantor) {
			found := false
			for _, got := range g.ScopeFor(grantee) {
				if got == grantor {
					found = true
				}
			}
			if !found {
				t.Errorf("edge %s->%s missing from amplify view", grantor, grantee)
			}
		}
	}
	for _, grantee := range users {
		for _, grantor := range g.ScopeFor(grantee) {
			if !g.HasEdge(grantor, grantee) {
				t.Errorf("amplify %s<-%s missing from exposed view", grantee, grantor)
			}
		}
	}
}

func TestBadgerEdgeStore_RoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "memtrail-social-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	store := NewBadgerEdgeStore(db)
	g := NewGraph(store)

	g.Grant(ctx, "alice", "bob")
	g.Grant(ctx, "carol", "bob")
	g.Revoke(ctx, "carol", "bob")

	// A fresh graph over the same store sees the surviving relation.
	g2 := NewGraph(store)
	if err := g2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if !g2.HasEdge("alice", "bob") {
		t.Error("expected persisted edge alice->bob")
	}
	if g2.HasEdge("carol", "bob") {
		t.Error("revoked edge carol->bob should not persist")
	}
}

func TestGraph_ScopeSorted(t *testing.T) {
	g := NewGraph(nil)
	ctx := context.Background()

	for i := 9; i >= 0; i-- {
		g.Grant(ctx, fmt.Sprintf("u%d", i), "reader")
	}
	scope := g.ScopeFor("reader")
	for i := 1; i < len(scope); i++ {
		if scope[i-1] >= scope[i] {
			t.Fatalf("scope not sorted: %v", scope)
		}
	}
}
