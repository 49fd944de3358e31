package recall

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestIndex() *HybridIndex {
	return NewHybridIndex(NewHashEmbedder(256), 1.5, 0.75)
}

func mustUpsert(t *testing.T, idx *HybridIndex, id, owner, text string, shared bool) {
	t.Helper()
	err := idx.Upsert(context.Background(), Document{
		ID:        id,
		Owner:     owner,
		Text:      text,
		Shared:    shared,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHybridIndex_OwnerSeesOwnPrivateRecords(t *testing.T) {
	idx := newTestIndex()
	mustUpsert(t, idx, "r1", "alice", "favorite restaurant sushi place downtown", false)

	hits, err := idx.Search(context.Background(), "sushi restaurant", Scope{Self: "alice"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].RecordID != "r1" {
		t.Fatalf("expected own private record, got %v", hits)
	}
}

func TestHybridIndex_NoLeakAcrossScope(t *testing.T) {
	idx := newTestIndex()
	mustUpsert(t, idx, "priv", "alice", "secret diary password hunter2", false)
	mustUpsert(t, idx, "pub", "alice", "shared note about the team offsite", true)

	// Bob without an amplify edge sees nothing of alice's, even on an
	// exact keyword match.
	hits, err := idx.Search(context.Background(), "secret diary password hunter2", Scope{Self: "bob"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("scope leak: bob saw %v", hits)
	}

	// With the edge, only the shared record becomes visible.
	scope := Scope{Self: "bob", AmplifyFrom: []string{"alice"}}
	hits, err = idx.Search(context.Background(), "offsite diary", scope, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.RecordID == "priv" {
			t.Fatal("private record leaked through amplify edge")
		}
	}
	found := false
	for _, h := range hits {
		if h.RecordID == "pub" {
			found = true
		}
	}
	if !found {
		t.Error("shared record should be visible through amplify edge")
	}
}

func TestHybridIndex_MergesBranchScores(t *testing.T) {
	idx := newTestIndex()
	mustUpsert(t, idx, "r1", "alice", "booking flights to tokyo in spring", false)

	hits, err := idx.Search(context.Background(), "flights tokyo", Scope{Self: "alice"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	if hits[0].Semantic <= 0 || hits[0].Keyword <= 0 {
		t.Errorf("expected both component scores set, got semantic=%f keyword=%f",
			hits[0].Semantic, hits[0].Keyword)
	}
}

func TestHybridIndex_EmptyQueryRejected(t *testing.T) {
	idx := newTestIndex()
	if _, err := idx.Search(context.Background(), "   ", Scope{Self: "alice"}, 10); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestHybridIndex_DeleteRemovesFromBothBranches(t *testing.T) {
	idx := newTestIndex()
	mustUpsert(t, idx, "r1", "alice", "gym schedule tuesdays", false)

	if err := idx.Delete(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(context.Background(), "gym schedule", Scope{Self: "alice"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("deleted record still searchable: %v", hits)
	}
}

func TestHybridIndex_Deterministic(t *testing.T) {
	idx := newTestIndex()
	mustUpsert(t, idx, "a", "alice", "coffee order flat white", false)
	mustUpsert(t, idx, "b", "alice", "coffee meeting with sam", false)
	mustUpsert(t, idx, "c", "alice", "new coffee grinder settings", false)

	first, err := idx.Search(context.Background(), "coffee", Scope{Self: "alice"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := idx.Search(context.Background(), "coffee", Scope{Self: "alice"}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatal("search result count not deterministic")
		}
		for j := range again {
			if again[j].RecordID != first[j].RecordID {
				t.Fatalf("search order not deterministic at %d", j)
			}
		}
	}
}

func TestHashEmbedder_SimilarTextsSimilarVectors(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "planning a hiking trip in the alps")
	b, _ := e.Embed(ctx, "hiking trip planning alps gear list")
	c, _ := e.Embed(ctx, "quarterly tax filing deadline")

	if cosineSimilarity(a, b) <= cosineSimilarity(a, c) {
		t.Error("overlapping vocabulary should yield higher similarity")
	}
}
