// Package memory stores long-lived memory records and runs the
// sanitize-and-publish pipeline that turns private records into shareable
// ones. A record is immutable once written; sharing always creates a new
// record pointing back at its source.
package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the memory package.
var (
	ErrNotFound  = errors.New("memory: record not found")
	ErrEmptyText = errors.New("memory: record text is empty")
	ErrSanitizer = errors.New("memory: sanitizer failed, record stays private")
)

// Record is one durable memory entry.
type Record struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Text  string `json:"text"`

	// Shared marks a record visible to the owner's readers. Private
	// records never flip to shared; publishing mints a new record.
	Shared bool `json:"shared"`

	// SourceID links a published record to the private record it was
	// sanitized from. Empty on private records.
	SourceID string `json:"source_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRecord creates a private record for owner.
func NewRecord(owner, text string) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Owner:     owner,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}
