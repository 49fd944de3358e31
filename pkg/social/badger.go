package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const edgeKeyPrefix = "edge:"

// BadgerEdgeStore persists the permission relation in Badger as
// edge:{grantor}:{grantee} keys with empty values.
type BadgerEdgeStore struct {
	db *badger.DB
}

// NewBadgerEdgeStore creates an edge store over an externally managed DB.
func NewBadgerEdgeStore(db *badger.DB) *BadgerEdgeStore {
	return &BadgerEdgeStore{db: db}
}

func edgeKey(e Edge) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", edgeKeyPrefix, e.Grantor, e.Grantee))
}

// PutEdge writes an edge. Writing an existing edge is a no-op.
func (s *BadgerEdgeStore) PutEdge(ctx context.Context, e Edge) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgeKey(e), nil)
	})
}

// DeleteEdge removes an edge. Deleting a missing edge is not an error.
func (s *BadgerEdgeStore) DeleteEdge(ctx context.Context, e Edge) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(edgeKey(e))
	})
}

// AllEdges scans the full relation.
func (s *BadgerEdgeStore) AllEdges(ctx context.Context) ([]Edge, error) {
	var edges []Edge
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(edgeKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			parts := strings.SplitN(strings.TrimPrefix(key, edgeKeyPrefix), ":", 2)
			if len(parts) != 2 {
				continue
			}
			edges = append(edges, Edge{Grantor: parts[0], Grantee: parts[1]})
		}
		return nil
	})
	return edges, err
}

// Close is a no-op since the Badger DB lifecycle is managed externally.
func (s *BadgerEdgeStore) Close() error {
	return nil
}
