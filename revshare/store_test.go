package revshare

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenBoltStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func eachStore(t *testing.T, fn func(t *testing.T, store LedgerStore)) {
	t.Run("mem", func(t *testing.T) { fn(t, NewMemLedgerStore()) })
	t.Run("bolt", func(t *testing.T) { fn(t, tempBoltStore(t)) })
}

// ---------------------------------------------------------------------------
// LedgerStore tests
// ---------------------------------------------------------------------------

func TestLedgerStore_PutAndGet(t *testing.T) {
	eachStore(t, func(t *testing.T, store LedgerStore) {
		st := populatedLedger(t).State()
		require.NoError(t, store.PutLedger(st))

		got, err := store.GetLedger(st.Name)
		require.NoError(t, err)
		assert.Equal(t, st, got)
	})
}

func TestLedgerStore_PutReplaces(t *testing.T) {
	eachStore(t, func(t *testing.T, store LedgerStore) {
		l, _ := newTestLedger(t)
		require.NoError(t, store.PutLedger(l.State()))

		require.NoError(t, l.AddAccountShares([]AccountShareParams{share(alice, 100)}))
		require.NoError(t, store.PutLedger(l.State()))

		got, err := store.GetLedger("deposits")
		require.NoError(t, err)
		require.Len(t, got.Accounts, 1)
		assert.Equal(t, alice, got.Accounts[0].Identity)
	})
}

func TestLedgerStore_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, store LedgerStore) {
		_, err := store.GetLedger("missing")
		assert.ErrorIs(t, err, ErrLedgerNotFound)

		err = store.DeleteLedger("missing")
		assert.ErrorIs(t, err, ErrLedgerNotFound)
	})
}

func TestLedgerStore_ListAndDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, store LedgerStore) {
		for _, name := range []string{"rewards", "deposits", "fees"} {
			l, err := New(Config{Name: name})
			require.NoError(t, err)
			require.NoError(t, store.PutLedger(l.State()))
		}

		names, err := store.ListLedgers()
		require.NoError(t, err)
		assert.Equal(t, []string{"deposits", "fees", "rewards"}, names)

		require.NoError(t, store.DeleteLedger("fees"))
		names, err = store.ListLedgers()
		require.NoError(t, err)
		assert.Equal(t, []string{"deposits", "rewards"}, names)
	})
}

func TestLedgerStore_NilState(t *testing.T) {
	eachStore(t, func(t *testing.T, store LedgerStore) {
		assert.ErrorIs(t, store.PutLedger(nil), ErrNilParam)
	})
}

// ---------------------------------------------------------------------------
// BoltStore tests
// ---------------------------------------------------------------------------

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledgers.db")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)

	l := populatedLedger(t)
	require.NoError(t, store.PutLedger(l.State()))
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	st, err := store.GetLedger("deposits")
	require.NoError(t, err)
	restored, err := Restore(Config{}, st)
	require.NoError(t, err)
	assert.Equal(t, l.Checkpoints(), restored.Checkpoints())
	assert.Equal(t, l.Outstanding(), restored.Outstanding())
}

func TestBoltStore_RejectsEmptyName(t *testing.T) {
	store := tempBoltStore(t)
	err := store.PutLedger(&LedgerState{Checkpoints: []Checkpoint{{}}})
	assert.ErrorIs(t, err, ErrInvalidLedgerData)
}

func TestBoltStore_LockedByOtherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgers.db")
	held, err := OpenBoltStore(path)
	require.NoError(t, err)

	start := time.Now()
	_, err = OpenBoltStoreWithOptions(path, BoltOptions{FailFast: true})
	assert.ErrorIs(t, err, ErrStoreLocked)
	assert.Less(t, time.Since(start), time.Second)

	_, err = OpenBoltStoreWithOptions(path, BoltOptions{Timeout: 100 * time.Millisecond})
	assert.ErrorIs(t, err, ErrStoreLocked)

	require.NoError(t, held.Close())
	store, err := OpenBoltStoreWithOptions(path, BoltOptions{FailFast: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestBoltStore_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgers.db")
	_, err := OpenBoltStoreWithOptions(path, BoltOptions{ReadOnly: true, FailFast: true})
	assert.Error(t, err)

	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	l := populatedLedger(t)
	require.NoError(t, store.PutLedger(l.State()))
	require.NoError(t, store.Close())

	r1, err := OpenBoltStoreWithOptions(path, BoltOptions{ReadOnly: true, FailFast: true})
	require.NoError(t, err)
	defer r1.Close()
	r2, err := OpenBoltStoreWithOptions(path, BoltOptions{ReadOnly: true, FailFast: true})
	require.NoError(t, err)
	defer r2.Close()

	st, err := r2.GetLedger("deposits")
	require.NoError(t, err)
	assert.Equal(t, l.State(), st)
	assert.Error(t, r1.PutLedger(st))

	_, err = OpenBoltStoreWithOptions(path, BoltOptions{FailFast: true})
	assert.ErrorIs(t, err, ErrStoreLocked)
}
