package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/memtrail/memtrail/config"
	"github.com/memtrail/memtrail/pkg/conversation"
	"github.com/memtrail/memtrail/pkg/logger"
	"github.com/memtrail/memtrail/pkg/memory"
	"github.com/memtrail/memtrail/pkg/metrics"
	"github.com/memtrail/memtrail/pkg/recall"
	"github.com/memtrail/memtrail/pkg/sessioncache"
	"github.com/memtrail/memtrail/pkg/sessionstore"
	"github.com/memtrail/memtrail/pkg/social"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir, err := os.MkdirTemp("", "memtrail-service-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.New(nil)
	m := metrics.NoOpManager()

	graph := social.NewGraph(social.NewBadgerEdgeStore(db))
	index := recall.NewHybridIndex(recall.NewHashEmbedder(128), 1.5, 0.75)
	records := memory.NewStore(db, index, memory.RedactingSanitizer{}, graph, 2*time.Second, log)
	client := recall.NewClient(graph, index, recall.Tuning{
		Alpha:        0.7,
		HalfLife:     14 * 24 * time.Hour,
		DefaultTopK:  10,
		QueryTimeout: 2 * time.Second,
	}, log)
	cache := sessioncache.New(sessionstore.NewMemoryStore(), sessioncache.Options{
		Capacity:     16,
		Workers:      2,
		RetryBudget:  3,
		RetryBackoff: 5 * time.Millisecond,
	}, log, m)

	svc := New(Options{
		Graph:         graph,
		Records:       records,
		Recall:        client,
		Cache:         cache,
		Metrics:       m,
		Logger:        log,
		ContextMetric: conversation.MetricMessages,
		ContextBudget: 50,
	})
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc
}

func TestService_RememberAndRecallOwn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Remember(ctx, "alice", "allergic to peanuts, carries an epipen")
	if err != nil {
		t.Fatal(err)
	}

	results := svc.Recall(ctx, "alice", "peanut allergy", 5)
	if len(results) == 0 {
		t.Fatal("expected own record in recall")
	}
	if results[0].RecordID != rec.ID {
		t.Errorf("expected the remembered record first, got %s", results[0].RecordID)
	}
}

func TestService_SharingFollowsGraph(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.GrantAccess(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Remember(ctx, "alice", "team retro moved to fridays"); err != nil {
		t.Fatal(err)
	}
	svc.records.Wait() // background publish

	results := svc.Recall(ctx, "bob", "retro fridays", 5)
	if len(results) == 0 {
		t.Fatal("grantee should see the published record")
	}
	for _, r := range results {
		if r.Owner != "alice" {
			t.Errorf("unexpected owner %s in bob's recall", r.Owner)
		}
	}

	// Revocation takes effect on the next query.
	if err := svc.RevokeAccess(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	results = svc.Recall(ctx, "bob", "retro fridays", 5)
	if len(results) != 0 {
		t.Errorf("revoked grantee still sees %d records", len(results))
	}
}

func TestService_ShareWithoutReadersSkipped(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Remember(ctx, "carol", "nothing shared yet")
	if err != nil {
		t.Fatal(err)
	}
	svc.records.Wait()

	pub, err := svc.Share(ctx, "carol", rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pub != nil {
		t.Errorf("expected skip without readers, got %+v", pub)
	}
}

func TestService_ConversationRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	turns := []conversation.Turn{
		conversation.NewTurn(conversation.KindSystem, "sys"),
		conversation.NewTurn(conversation.KindHuman, "hello"),
		conversation.NewTurn(conversation.KindAssistant, "hi there"),
		conversation.NewTurn(conversation.KindHuman, "latest question"),
	}
	if err := svc.RecordTurn(ctx, "s1", turns...); err != nil {
		t.Fatal(err)
	}

	got, err := svc.GetContext(ctx, "s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(turns) {
		t.Fatalf("expected full conversation under budget, got %d turns", len(got))
	}

	// A tight budget trims the middle but keeps the last human turn.
	got, err = svc.GetContext(ctx, "s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[len(got)-1].Text != "latest question" {
		t.Error("trimmed context lost the latest human turn")
	}
}

func TestService_ApplyConfigRetunes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, text := range []string{"note about tea", "note about coffee", "note about cocoa"} {
		if _, err := svc.Remember(ctx, "alice", text); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{}
	cfg.Recall.Alpha = 0.9
	cfg.Recall.HalfLife = 24 * time.Hour
	cfg.Recall.DefaultTopK = 1
	cfg.Recall.QueryTimeout = time.Second
	cfg.Context.Metric = conversation.MetricTokens
	cfg.Context.DefaultBudget = 100
	svc.ApplyConfig(cfg)

	results := svc.Recall(ctx, "alice", "note", 0)
	if len(results) != 1 {
		t.Errorf("expected retuned default topK of 1, got %d", len(results))
	}
}
