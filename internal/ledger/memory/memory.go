// Package memory provides an in-memory ledger store. It backs dry runs and
// tests, holding sections as string grids guarded by a mutex.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fiscal/internal/ledger"
)

// Store is an in-memory ledger.Store. Sections are created on first append.
type Store struct {
	mu       sync.RWMutex
	sections map[string][][]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sections: make(map[string][][]string)}
}

// AppendRow appends one row to a section, creating the section when absent.
func (s *Store) AppendRow(_ context.Context, section string, values []interface{}) error {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = strings.TrimSpace(fmt.Sprint(v))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[section] = append(s.sections[section], row)
	return nil
}

// ReadAllRows returns a copy of every row in the section.
func (s *Store) ReadAllRows(_ context.Context, section string) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.sections[section]
	if !ok {
		return nil, fmt.Errorf("section %s: %w", section, ledger.ErrSectionNotFound)
	}

	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

// EnsureSection creates the section with a header row when it is absent.
func (s *Store) EnsureSection(_ context.Context, section string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sections[section]; ok {
		return nil
	}
	s.sections[section] = [][]string{append([]string(nil), header...)}
	return nil
}

// Seed replaces the section contents. Test fixtures use it to set up
// pre-existing ledger state.
func (s *Store) Seed(section string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([][]string, len(rows))
	for i, row := range rows {
		copied[i] = append([]string(nil), row...)
	}
	s.sections[section] = copied
}
