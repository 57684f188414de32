package revshare

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

var bucketLedgers = []byte("ledgers")

// DefaultOpenTimeout bounds how long OpenBoltStore waits for another process
// to release the database.
const DefaultOpenTimeout = 30 * time.Second

// BoltOptions tunes OpenBoltStoreWithOptions.
type BoltOptions struct {
	// Timeout bounds the wait for the database file lock. Zero means
	// DefaultOpenTimeout.
	Timeout time.Duration

	// FailFast gives up after a single attempt when the lock is held.
	FailFast bool

	// ReadOnly takes a shared lock. The database must already exist.
	ReadOnly bool
}

// BoltStore persists ledger snapshots in a bbolt database. bbolt locks the
// file for as long as the store is open.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ LedgerStore = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath, waiting up to
// DefaultOpenTimeout for another process to close it.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	return OpenBoltStoreWithOptions(dbPath, BoltOptions{})
}

// OpenBoltStoreWithOptions opens the bbolt database at dbPath. It fails with
// ErrStoreLocked when another process keeps the database open past the
// configured wait.
func OpenBoltStoreWithOptions(dbPath string, opts BoltOptions) (*BoltStore, error) {
	timeout := opts.Timeout
	switch {
	case opts.FailFast:
		// bbolt gives up after the first failed attempt once the deadline
		// has passed.
		timeout = time.Nanosecond
	case timeout <= 0:
		timeout = DefaultOpenTimeout
	}

	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("revshare: create directory: %w", err)
		}
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: timeout, ReadOnly: opts.ReadOnly})
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("revshare: open bolt db: %w", err)
	}
	if opts.ReadOnly {
		return &BoltStore{db: db}, nil
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLedgers); err != nil {
			return fmt.Errorf("boltstore: create bucket %q: %w", bucketLedgers, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("revshare: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// PutLedger stores a ledger snapshot keyed by its name.
func (s *BoltStore) PutLedger(st *LedgerState) error {
	if st == nil {
		return fmt.Errorf("%w: ledger state", ErrNilParam)
	}
	if st.Name == "" {
		return fmt.Errorf("%w: empty ledger name", ErrInvalidLedgerData)
	}
	data, err := EncodeLedgerState(st)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLedgers).Put([]byte(st.Name), data); err != nil {
			return fmt.Errorf("boltstore: put ledger: %w", err)
		}
		return nil
	})
}

// GetLedger retrieves a ledger snapshot by name.
func (s *BoltStore) GetLedger(name string) (*LedgerState, error) {
	var st *LedgerState
	err := s.db.View(func(tx *bbolt.Tx) error {
		var data []byte
		if b := tx.Bucket(bucketLedgers); b != nil {
			data = b.Get([]byte(name))
		}
		if data == nil {
			return fmt.Errorf("%w: %q", ErrLedgerNotFound, name)
		}
		// data is only valid inside the transaction; DecodeLedgerState copies.
		decoded, err := DecodeLedgerState(data)
		if err != nil {
			return fmt.Errorf("boltstore: decode ledger: %w", err)
		}
		st = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListLedgers returns all stored ledger names in key order.
func (s *BoltStore) ListLedgers() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLedgers)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: list ledgers: %w", err)
	}
	return names, nil
}

// DeleteLedger removes a ledger snapshot.
func (s *BoltStore) DeleteLedger(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLedgers)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %q", ErrLedgerNotFound, name)
		}
		if err := b.Delete([]byte(name)); err != nil {
			return fmt.Errorf("boltstore: delete ledger: %w", err)
		}
		return nil
	})
}
