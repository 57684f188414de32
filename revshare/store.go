package revshare

import (
	"fmt"
	"slices"
	"sync"
)

// LedgerStore persists ledger snapshots keyed by stream name.
type LedgerStore interface {
	// PutLedger stores st, replacing any snapshot with the same name.
	PutLedger(st *LedgerState) error

	// GetLedger retrieves the snapshot stored under name.
	GetLedger(name string) (*LedgerState, error)

	// ListLedgers returns the stored names in ascending order.
	ListLedgers() ([]string, error)

	// DeleteLedger removes the snapshot stored under name.
	DeleteLedger(name string) error
}

// MemLedgerStore is an in-memory implementation of LedgerStore for testing.
// Snapshots are kept encoded so callers never share state with the store.
type MemLedgerStore struct {
	mu     sync.RWMutex
	byName map[string][]byte
}

// NewMemLedgerStore creates a new in-memory ledger store.
func NewMemLedgerStore() *MemLedgerStore {
	return &MemLedgerStore{byName: make(map[string][]byte)}
}

// Compile-time interface check.
var _ LedgerStore = (*MemLedgerStore)(nil)

// PutLedger stores a ledger snapshot.
func (s *MemLedgerStore) PutLedger(st *LedgerState) error {
	if st == nil {
		return fmt.Errorf("%w: ledger state", ErrNilParam)
	}
	data, err := EncodeLedgerState(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[st.Name] = data
	return nil
}

// GetLedger retrieves a ledger snapshot by name.
func (s *MemLedgerStore) GetLedger(name string) (*LedgerState, error) {
	s.mu.RLock()
	data, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLedgerNotFound, name)
	}
	return DecodeLedgerState(data)
}

// ListLedgers returns all stored ledger names.
func (s *MemLedgerStore) ListLedgers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// DeleteLedger removes a ledger snapshot.
func (s *MemLedgerStore) DeleteLedger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return fmt.Errorf("%w: %q", ErrLedgerNotFound, name)
	}
	delete(s.byName, name)
	return nil
}
