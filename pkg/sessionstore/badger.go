package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/memtrail/memtrail/pkg/conversation"
)

const sessionKeyPrefix = "session:"

// BadgerStore persists session logs as session:{id}:{seq} keys, one turn per
// key, with a zero-padded sequence so a prefix scan yields append order.
type BadgerStore struct {
	db *badger.DB

	mu   sync.Mutex
	seqs map[string]uint64 // next sequence per session
}

// NewBadgerStore creates a session store over an externally managed DB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, seqs: make(map[string]uint64)}
}

func sessionPrefix(sessionID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", sessionKeyPrefix, sessionID))
}

func turnKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", sessionKeyPrefix, sessionID, seq))
}

// Append writes turns under the next sequence numbers.
func (s *BadgerStore) Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeqLocked(sessionID)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for i, turn := range turns {
			data, err := json.Marshal(turn)
			if err != nil {
				return fmt.Errorf("sessionstore: marshal turn: %w", err)
			}
			if err := txn.Set(turnKey(sessionID, seq+uint64(i)), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sessionstore: append: %w", err)
	}
	s.seqs[sessionID] = seq + uint64(len(turns))
	return nil
}

// nextSeqLocked returns the next sequence, scanning the existing log on
// first touch of a session.
func (s *BadgerStore) nextSeqLocked(sessionID string) (uint64, error) {
	if seq, ok := s.seqs[sessionID]; ok {
		return seq, nil
	}
	var count uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix(sessionID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sessionstore: seek sequence: %w", err)
	}
	s.seqs[sessionID] = count
	return count, nil
}

// Load returns the session log in append order.
func (s *BadgerStore) Load(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	var turns []conversation.Turn
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var turn conversation.Turn
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &turn)
			})
			if err != nil {
				return err
			}
			turns = append(turns, turn)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: load: %w", err)
	}
	return turns, nil
}

// Close is a no-op since the Badger DB lifecycle is managed externally.
func (s *BadgerStore) Close() error { return nil }
