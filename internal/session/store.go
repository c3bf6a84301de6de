// Package session keeps the pending submission each submitter is working
// on between staging and confirmation.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"fiscal/pkg/models"
)

// ErrNotFound is returned when a submitter has no pending submission.
var ErrNotFound = errors.New("no pending submission for submitter")

// Store holds at most one pending submission per submitter.
type Store interface {
	// Get returns the submitter's pending submission.
	Get(ctx context.Context, submitter string) (*models.PendingSubmission, error)

	// Put stores the submitter's pending submission, replacing any
	// previous one.
	Put(ctx context.Context, submitter string, sub *models.PendingSubmission) error

	// Delete removes the submitter's pending submission. Deleting when
	// nothing is pending is not an error.
	Delete(ctx context.Context, submitter string) error
}

type entry struct {
	sub     models.PendingSubmission
	expires time.Time
}

// MemoryStore is an in-memory Store with optional expiry.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose entries expire after ttl. A zero
// ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Get returns a copy of the submitter's pending submission. Expired
// entries are dropped on read.
func (s *MemoryStore) Get(_ context.Context, submitter string) (*models.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[submitter]
	if !ok {
		return nil, ErrNotFound
	}
	if s.ttl > 0 && time.Now().After(e.expires) {
		delete(s.entries, submitter)
		return nil, ErrNotFound
	}

	sub := e.sub
	return &sub, nil
}

// Put stores a copy of the submission and resets its expiry.
func (s *MemoryStore) Put(_ context.Context, submitter string, sub *models.PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[submitter] = entry{
		sub:     *sub,
		expires: time.Now().Add(s.ttl),
	}
	return nil
}

// Delete removes the submitter's entry.
func (s *MemoryStore) Delete(_ context.Context, submitter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, submitter)
	return nil
}
