package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/memtrail/memtrail/pkg/logger"
	"github.com/memtrail/memtrail/pkg/recall"
)

const recordKeyPrefix = "record:"

// ReaderSource answers who may read an owner's shared records. The social
// graph satisfies this.
type ReaderSource interface {
	ReadersOf(owner string) []string
}

// Store persists memory records in Badger and keeps the recall index in
// step. Writes are private by default; publication runs asynchronously
// through the sanitizer and mints a separate shared record.
type Store struct {
	db        *badger.DB
	index     recall.Index
	sanitizer Sanitizer
	readers   ReaderSource
	log       logger.Logger

	sanitizeTimeout time.Duration

	wg sync.WaitGroup
}

// NewStore creates a record store over an externally managed Badger DB.
func NewStore(db *badger.DB, index recall.Index, sanitizer Sanitizer, readers ReaderSource, sanitizeTimeout time.Duration, log logger.Logger) *Store {
	return &Store{
		db:              db,
		index:           index,
		sanitizer:       sanitizer,
		readers:         readers,
		log:             log,
		sanitizeTimeout: sanitizeTimeout,
	}
}

func recordKey(owner, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", recordKeyPrefix, owner, id))
}

// WritePrivate durably stores a new private record for owner, indexes it,
// and schedules sanitize-and-publish in the background. The returned record
// is the private one; publication never mutates it.
func (s *Store) WritePrivate(ctx context.Context, owner, text string) (*Record, error) {
	if owner == "" {
		return nil, fmt.Errorf("memory: empty owner")
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	rec := NewRecord(owner, text)
	if err := s.put(rec); err != nil {
		return nil, err
	}
	if err := s.indexRecord(ctx, rec); err != nil {
		s.log.WarnContext(ctx, "record stored but not indexed",
			"record_id", rec.ID,
			"error", err,
		)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Publication outlives the request; it gets its own deadline.
		pctx, cancel := context.WithTimeout(context.Background(), s.sanitizeTimeout)
		defer cancel()
		if _, err := s.Publish(pctx, rec); err != nil && !errors.Is(err, ErrSanitizer) {
			s.log.Error("background publish failed",
				"record_id", rec.ID,
				"error", err,
			)
		}
	}()

	return rec, nil
}

// Publish runs the sanitizer over a private record and stores the cleaned
// text as a new shared record with provenance back to the source. It returns
// (nil, nil) when the owner has no readers, since there is no one to publish
// for. A sanitizer error keeps the record private and is reported as
// ErrSanitizer; nothing is ever published unsanitized.
func (s *Store) Publish(ctx context.Context, rec *Record) (*Record, error) {
	if rec.Shared {
		return nil, fmt.Errorf("memory: record %s is already shared", rec.ID)
	}
	if len(s.readers.ReadersOf(rec.Owner)) == 0 {
		return nil, nil
	}

	clean, err := s.sanitizer.Sanitize(ctx, rec.Text)
	if err != nil {
		s.log.WarnContext(ctx, "sanitizer refused record, keeping it private",
			"record_id", rec.ID,
			"owner", rec.Owner,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrSanitizer, err)
	}

	pub := NewRecord(rec.Owner, clean)
	pub.Shared = true
	pub.SourceID = rec.ID

	if err := s.put(pub); err != nil {
		return nil, err
	}
	if err := s.indexRecord(ctx, pub); err != nil {
		s.log.WarnContext(ctx, "published record stored but not indexed",
			"record_id", pub.ID,
			"error", err,
		)
	}

	s.log.InfoContext(ctx, "record published",
		"record_id", pub.ID,
		"source_id", rec.ID,
		"owner", rec.Owner,
	)
	return pub, nil
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, owner, id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(owner, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get record: %w", err)
	}
	return &rec, nil
}

// ListByOwner returns all of an owner's records, private and shared.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]*Record, error) {
	prefix := []byte(recordKeyPrefix + owner + ":")
	var records []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory: list records: %w", err)
	}
	return records, nil
}

// Reindex rebuilds the recall index from the durable records. Called at
// startup since the index lives in memory.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if err := s.indexRecord(ctx, &rec); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("memory: reindex: %w", err)
	}
	return count, nil
}

// Wait blocks until all scheduled background publications finish. For
// shutdown and tests.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Owner, rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("memory: store record: %w", err)
	}
	return nil
}

func (s *Store) indexRecord(ctx context.Context, rec *Record) error {
	return s.index.Upsert(ctx, recall.Document{
		ID:        rec.ID,
		Owner:     rec.Owner,
		Text:      rec.Text,
		Shared:    rec.Shared,
		CreatedAt: rec.CreatedAt,
	})
}
