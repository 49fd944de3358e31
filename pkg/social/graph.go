// Package social owns the sharing-permission graph between users. An edge
// grantor->grantee means the grantor exposes their shared memories to the
// grantee; the inverse view (who a user may amplify from) is derived from the
// same relation and can never diverge from it.
package social

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for the social graph.
var (
	ErrSelfEdge    = errors.New("social: cannot grant access to self")
	ErrInvalidUser = errors.New("social: empty user id")
)

// Edge is a directed permission relation: Grantor exposes to Grantee.
type Edge struct {
	Grantor string `json:"grantor"`
	Grantee string `json:"grantee"`
}

// EdgeStore persists the edge relation. Implementations must tolerate
// idempotent puts and deletes of edges that do not exist.
type EdgeStore interface {
	PutEdge(ctx context.Context, e Edge) error
	DeleteEdge(ctx context.Context, e Edge) error
	AllEdges(ctx context.Context) ([]Edge, error)
	Close() error
}

// Graph is the in-memory permission graph. It keeps one edge set with two
// lookup indices maintained under the same mutex, so grant and revoke are
// atomic across both views.
type Graph struct {
	mu sync.RWMutex

	// exposedTo: grantor -> set of grantees.
	exposedTo map[string]map[string]struct{}
	// amplifyFrom: grantee -> set of grantors. Always the exact inverse
	// of exposedTo.
	amplifyFrom map[string]map[string]struct{}

	store EdgeStore // optional durable relation
}

// NewGraph creates an empty permission graph. store may be nil for a purely
// in-memory graph (tests).
func NewGraph(store EdgeStore) *Graph {
	return &Graph{
		exposedTo:   make(map[string]map[string]struct{}),
		amplifyFrom: make(map[string]map[string]struct{}),
		store:       store,
	}
}

// Load restores the edge relation from the durable store.
func (g *Graph) Load(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	edges, err := g.store.AllEdges(ctx)
	if err != nil {
		return fmt.Errorf("social: load edges: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range edges {
		g.addLocked(e)
	}
	return nil
}

// Grant creates the edge owner->grantee. Granting an existing edge is a no-op.
func (g *Graph) Grant(ctx context.Context, owner, grantee string) error {
	if owner == "" || grantee == "" {
		return ErrInvalidUser
	}
	if owner == grantee {
		return ErrSelfEdge
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e := Edge{Grantor: owner, Grantee: grantee}
	if g.hasLocked(e) {
		return nil
	}
	if g.store != nil {
		if err := g.store.PutEdge(ctx, e); err != nil {
			return fmt.Errorf("social: persist edge: %w", err)
		}
	}
	g.addLocked(e)
	return nil
}

// Revoke removes the edge owner->grantee from both views atomically.
// Revoking a missing edge is a no-op.
func (g *Graph) Revoke(ctx context.Context, owner, grantee string) error {
	if owner == "" || grantee == "" {
		return ErrInvalidUser
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e := Edge{Grantor: owner, Grantee: grantee}
	if !g.hasLocked(e) {
		return nil
	}
	if g.store != nil {
		if err := g.store.DeleteEdge(ctx, e); err != nil {
			return fmt.Errorf("social: delete edge: %w", err)
		}
	}
	delete(g.exposedTo[owner], grantee)
	if len(g.exposedTo[owner]) == 0 {
		delete(g.exposedTo, owner)
	}
	delete(g.amplifyFrom[grantee], owner)
	if len(g.amplifyFrom[grantee]) == 0 {
		delete(g.amplifyFrom, grantee)
	}
	return nil
}

// ScopeFor returns the users whose shared memories `user` may read, sorted
// for determinism. Unknown users have an empty scope.
func (g *Graph) ScopeFor(user string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	grantors := g.amplifyFrom[user]
	if len(grantors) == 0 {
		return nil
	}
	out := make([]string, 0, len(grantors))
	for grantor := range grantors {
		out = append(out, grantor)
	}
	sort.Strings(out)
	return out
}

// ReadersOf returns the grantees the owner currently exposes memories to.
func (g *Graph) ReadersOf(owner string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	grantees := g.exposedTo[owner]
	if len(grantees) == 0 {
		return nil
	}
	out := make([]string, 0, len(grantees))
	for grantee := range grantees {
		out = append(out, grantee)
	}
	sort.Strings(out)
	return out
}

// HasEdge reports whether owner currently exposes memories to grantee.
func (g *Graph) HasEdge(owner, grantee string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasLocked(Edge{Grantor: owner, Grantee: grantee})
}

func (g *Graph) hasLocked(e Edge) bool {
	grantees, ok := g.exposedTo[e.Grantor]
	if !ok {
		return false
	}
	_, ok = grantees[e.Grantee]
	return ok
}

func (g *Graph) addLocked(e Edge) {
	if g.exposedTo[e.Grantor] == nil {
		g.exposedTo[e.Grantor] = make(map[string]struct{})
	}
	g.exposedTo[e.Grantor][e.Grantee] = struct{}{}
	if g.amplifyFrom[e.Grantee] == nil {
		g.amplifyFrom[e.Grantee] = make(map[string]struct{})
	}
	g.amplifyFrom[e.Grantee][e.Grantor] = struct{}{}
}
