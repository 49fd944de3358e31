package recall

import (
	"testing"
	"time"
)

func TestBM25_HanRunesTokenizeIndividually(t *testing.T) {
	idx := NewBM25Index(1.5, 0.75)

	got := idx.tokenize("去东京旅行 tokyo trip")
	want := []string{"去", "东", "京", "旅", "行", "tokyo", "trip"}
	if len(got) != len(want) {
		t.Fatalf("tokenize: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize: got %v, want %v", got, want)
		}
	}
}

func TestBM25_SearchMatchesHanQuery(t *testing.T) {
	idx := NewBM25Index(1.5, 0.75)
	idx.Upsert("r1", "行程确认了", "alice", false, time.Now())
	idx.Upsert("r2", "totally unrelated note", "alice", false, time.Now())

	hits := idx.Search("行程", Scope{Self: "alice"}, 10)
	if len(hits) != 1 || hits[0].RecordID != "r1" {
		t.Fatalf("expected r1 for a CJK query, got %v", hits)
	}
}
