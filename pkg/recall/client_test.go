package recall

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/memtrail/memtrail/pkg/logger"
)

type staticScopes map[string][]string

func (s staticScopes) ScopeFor(user string) []string { return s[user] }

type failingIndex struct{}

func (failingIndex) Upsert(ctx context.Context, doc Document) error { return nil }
func (failingIndex) Delete(ctx context.Context, id string) error    { return nil }
func (failingIndex) Search(ctx context.Context, query string, scope Scope, limit int) ([]Hit, error) {
	return nil, fmt.Errorf("%w: connection refused", ErrUpstream)
}

type slowIndex struct{ inner Index }

func (s slowIndex) Upsert(ctx context.Context, doc Document) error { return s.inner.Upsert(ctx, doc) }
func (s slowIndex) Delete(ctx context.Context, id string) error    { return s.inner.Delete(ctx, id) }
func (s slowIndex) Search(ctx context.Context, query string, scope Scope, limit int) ([]Hit, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUpstream, ctx.Err())
	case <-time.After(time.Second):
		return s.inner.Search(ctx, query, scope, limit)
	}
}

func testTuning() Tuning {
	return Tuning{
		Alpha:        0.7,
		HalfLife:     14 * 24 * time.Hour,
		DefaultTopK:  10,
		QueryTimeout: 2 * time.Second,
	}
}

func TestClient_RecallScopedToGraph(t *testing.T) {
	idx := newTestIndex()
	mustUpsert(t, idx, "own", "bob", "my standing desk height", false)
	mustUpsert(t, idx, "shared", "alice", "standing desk recommendation shared", true)
	mustUpsert(t, idx, "hidden", "carol", "standing desk complaints", true)

	scopes := staticScopes{"bob": {"alice"}}
	c := NewClient(scopes, idx, testTuning(), logger.New(nil))

	results, err := c.Recall(context.Background(), "bob", "standing desk", 10)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.RecordID] = true
	}
	if !seen["own"] || !seen["shared"] {
		t.Errorf("expected own and amplified records, got %v", seen)
	}
	if seen["hidden"] {
		t.Error("record from a non-amplified owner leaked into recall")
	}
}

func TestClient_FailSoftOnUpstreamError(t *testing.T) {
	c := NewClient(staticScopes{}, failingIndex{}, testTuning(), logger.New(nil))

	results, err := c.Recall(context.Background(), "bob", "anything", 5)
	if results != nil {
		t.Errorf("expected empty result on upstream failure, got %v", results)
	}
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestClient_FailSoftOnTimeout(t *testing.T) {
	tuning := testTuning()
	tuning.QueryTimeout = 10 * time.Millisecond

	c := NewClient(staticScopes{}, slowIndex{inner: newTestIndex()}, tuning, logger.New(nil))

	start := time.Now()
	results, err := c.Recall(context.Background(), "bob", "anything", 5)
	if results != nil {
		t.Errorf("expected empty result on timeout, got %v", results)
	}
	if err == nil {
		t.Error("expected a timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("recall did not honor the query deadline")
	}
}

func TestClient_TopKLimitsResults(t *testing.T) {
	idx := newTestIndex()
	for i := 0; i < 20; i++ {
		mustUpsert(t, idx, fmt.Sprintf("r%d", i), "alice", fmt.Sprintf("grocery note %d apples bananas", i), false)
	}

	c := NewClient(staticScopes{}, idx, testTuning(), logger.New(nil))
	results, err := c.Recall(context.Background(), "alice", "grocery apples", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestClient_ApplyTuningTakesEffect(t *testing.T) {
	idx := newTestIndex()
	mustUpsert(t, idx, "r1", "alice", "note one about kayaking", false)

	c := NewClient(staticScopes{}, idx, testTuning(), logger.New(nil))
	c.ApplyTuning(Tuning{
		Alpha:        0.9,
		HalfLife:     24 * time.Hour,
		DefaultTopK:  1,
		QueryTimeout: time.Second,
	})

	results, err := c.Recall(context.Background(), "alice", "kayaking", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("expected default topK of 1 after retuning, got %d", len(results))
	}
}

func TestErrUpstreamWrapping(t *testing.T) {
	_, err := failingIndex{}.Search(context.Background(), "q", Scope{}, 1)
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}
