package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"github.com/bitfsorg/libtreasury-go/metrics"
	"github.com/bitfsorg/libtreasury-go/revshare"
)

// Config configures a Treasury.
type Config struct {
	Streams    []string             // Revenue stream names; one ledger each
	Admins     []revshare.Identity  // Callers allowed to manage other accounts' shares
	Store      revshare.LedgerStore // Ledger persistence
	Transferer Transferer           // optional; defaults to a LogTransferer
	Logger     *slog.Logger         // optional; defaults to a discarding logger
	Clock      clockwork.Clock      // optional; defaults to the real clock

	// LockPath, when set, names a file locked around every call so that
	// several processes can share one store.
	LockPath string

	// FailFast makes calls fail instead of waiting when another process
	// holds LockPath.
	FailFast bool
}

// Validate checks required fields and fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Store == nil {
		return ErrNoStore
	}
	if len(cfg.Streams) == 0 {
		return ErrNoStreams
	}
	seen := make(map[string]struct{}, len(cfg.Streams))
	for _, s := range cfg.Streams {
		if s == "" {
			return fmt.Errorf("treasury: empty stream name")
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("treasury: duplicate stream %q", s)
		}
		seen[s] = struct{}{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Transferer == nil {
		cfg.Transferer = &LogTransferer{Logger: cfg.Logger}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Payout is the receipt of a withdrawal.
type Payout struct {
	ID       uuid.UUID
	Stream   string
	Account  revshare.Identity
	Caller   revshare.Identity
	Amount   *uint256.Int
	Finished bool // the account share is fully settled and its identity reusable
	PaidAt   time.Time
}

// Treasury hosts one revshare ledger per revenue stream. It linearizes
// calls, persists every state change and pays out settlements.
type Treasury struct {
	mu sync.Mutex

	streams    []string
	admins     map[revshare.Identity]struct{}
	store      revshare.LedgerStore
	transferer Transferer
	log        *slog.Logger
	clock      clockwork.Clock
	lockPath   string
	failFast   bool
}

// New creates a Treasury. Streams without a stored ledger start empty and
// are persisted immediately.
func New(cfg Config) (*Treasury, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Treasury{
		streams:    slices.Clone(cfg.Streams),
		admins:     make(map[revshare.Identity]struct{}, len(cfg.Admins)),
		store:      cfg.Store,
		transferer: cfg.Transferer,
		log:        cfg.Logger,
		clock:      cfg.Clock,
		lockPath:   cfg.LockPath,
		failFast:   cfg.FailFast,
	}
	for _, a := range cfg.Admins {
		t.admins[a] = struct{}{}
	}
	if t.lockPath != "" {
		if err := os.MkdirAll(filepath.Dir(t.lockPath), 0700); err != nil {
			return nil, fmt.Errorf("treasury: create lock directory: %w", err)
		}
	}

	for _, stream := range t.streams {
		err := t.withLock(func() error {
			l, err := t.load(stream)
			if err != nil {
				return err
			}
			t.observe(l)
			return t.store.PutLedger(l.State())
		})
		if err != nil {
			return nil, fmt.Errorf("treasury: open stream %q: %w", stream, err)
		}
	}
	return t, nil
}

// Streams returns the configured stream names.
func (t *Treasury) Streams() []string {
	return slices.Clone(t.streams)
}

// IsAdmin reports whether id may manage other accounts' shares.
func (t *Treasury) IsAdmin(id revshare.Identity) bool {
	_, ok := t.admins[id]
	return ok
}

func (t *Treasury) requireAdmin(caller revshare.Identity) error {
	if !t.IsAdmin(caller) {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}
	return nil
}

func (t *Treasury) ledgerConfig(stream string) revshare.Config {
	return revshare.Config{Name: stream, Logger: t.log, Clock: t.clock}
}

// load reads the latest persisted ledger for stream, or a new one.
func (t *Treasury) load(stream string) (*revshare.Ledger, error) {
	st, err := t.store.GetLedger(stream)
	if errors.Is(err, revshare.ErrLedgerNotFound) {
		return revshare.New(t.ledgerConfig(stream))
	}
	if err != nil {
		return nil, err
	}
	return revshare.Restore(t.ledgerConfig(stream), st)
}

// withLock runs fn under the treasury mutex and, when configured, the
// cross-process file lock.
func (t *Treasury) withLock(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lockPath == "" {
		return fn()
	}
	lock := acquireLock
	if t.failFast {
		lock = tryLock
	}
	fl, err := lock(t.lockPath)
	if err != nil {
		return err
	}
	defer releaseLock(fl)
	return fn()
}

// withLedger reloads the ledger for stream, runs fn on it and, for write
// operations, persists the result once fn succeeds.
func (t *Treasury) withLedger(ctx context.Context, stream, op string, write bool, fn func(l *revshare.Ledger) error) (err error) {
	start := t.clock.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.OperationsTotal.WithLabelValues(stream, op, status).Inc()
		metrics.OperationDuration.WithLabelValues(stream, op).Observe(t.clock.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !slices.Contains(t.streams, stream) {
		return fmt.Errorf("%w: %q", ErrUnknownStream, stream)
	}
	return t.withLock(func() error {
		l, err := t.load(stream)
		if err != nil {
			return fmt.Errorf("treasury: load %q: %w", stream, err)
		}
		if err := fn(l); err != nil {
			return err
		}
		if !write {
			return nil
		}
		if err := t.store.PutLedger(l.State()); err != nil {
			return fmt.Errorf("treasury: persist %q: %w", stream, err)
		}
		t.observe(l)
		return nil
	})
}

func (t *Treasury) observe(l *revshare.Ledger) {
	metrics.ObserveLedger(l.Name(), l.TotalBps(), len(l.Checkpoints()), l.Outstanding().Float64())
}

// ---------------------------------------------------------------------------
// Funds in
// ---------------------------------------------------------------------------

// Deposit registers revenue on stream and returns the part earmarked for
// shares. The rest stays with the treasury.
func (t *Treasury) Deposit(ctx context.Context, stream string, amount *uint256.Int) (*uint256.Int, error) {
	var allocated *uint256.Int
	err := t.withLedger(ctx, stream, "deposit", true, func(l *revshare.Ledger) error {
		var err error
		allocated, err = l.ProcessBalance(amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.AllocatedTotal.WithLabelValues(stream).Add(allocated.Float64())
	t.log.InfoContext(ctx, "deposit", "stream", stream, "amount", amount.Dec(), "allocated", allocated.Dec())
	return allocated, nil
}

// FundShares earmarks amount for the active shares in proportion to their
// claims, without a treasury cut.
func (t *Treasury) FundShares(ctx context.Context, stream string, amount *uint256.Int) (*uint256.Int, error) {
	var added *uint256.Int
	err := t.withLedger(ctx, stream, "fund", true, func(l *revshare.Ledger) error {
		var err error
		added, err = l.AddBalanceToShares(amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.AllocatedTotal.WithLabelValues(stream).Add(added.Float64())
	t.log.InfoContext(ctx, "fund shares", "stream", stream, "amount", amount.Dec(), "added", added.Dec())
	return added, nil
}

// ---------------------------------------------------------------------------
// Funds out
// ---------------------------------------------------------------------------

// Withdraw settles id on stream and transfers the owed amount. The
// settlement is persisted before the transfer, so a payout is made at most
// once. When the transfer fails the returned Payout is still valid and the
// error wraps ErrTransferFailed.
func (t *Treasury) Withdraw(ctx context.Context, stream string, caller, id revshare.Identity) (*Payout, error) {
	var p *Payout
	err := t.withLedger(ctx, stream, "withdraw", true, func(l *revshare.Ledger) error {
		owed, err := l.Settle(caller, id)
		if errors.Is(err, revshare.ErrConservationViolation) {
			return fmt.Errorf("%w: %w", ErrInsufficientEarmark, err)
		}
		if err != nil {
			return err
		}
		p = &Payout{
			ID:       uuid.New(),
			Stream:   stream,
			Account:  id,
			Caller:   caller,
			Amount:   owed,
			Finished: l.IsFinished(id),
			PaidAt:   t.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PaidTotal.WithLabelValues(stream).Add(p.Amount.Float64())
	t.log.InfoContext(ctx, "payout", "payout", p.ID, "stream", stream, "account", id, "caller", caller,
		"amount", p.Amount.Dec(), "finished", p.Finished)
	if p.Amount.IsZero() {
		return p, nil
	}
	if err := t.transferer.Transfer(ctx, p); err != nil {
		t.log.ErrorContext(ctx, "transfer failed", "payout", p.ID, "stream", stream, "error", err)
		return p, fmt.Errorf("%w: payout %s: %w", ErrTransferFailed, p.ID, err)
	}
	return p, nil
}

// Preview returns what Withdraw would pay id now.
func (t *Treasury) Preview(ctx context.Context, stream string, id revshare.Identity) (*uint256.Int, error) {
	var owed *uint256.Int
	err := t.withLedger(ctx, stream, "preview", false, func(l *revshare.Ledger) error {
		var err error
		owed, err = l.PreviewBalance(id)
		return err
	})
	return owed, err
}

// Predict returns what Withdraw would pay id after a further deposit of growth.
func (t *Treasury) Predict(ctx context.Context, stream string, id revshare.Identity, growth *uint256.Int) (*uint256.Int, error) {
	var owed *uint256.Int
	err := t.withLedger(ctx, stream, "predict", false, func(l *revshare.Ledger) error {
		var err error
		owed, err = l.PredictedBalance(id, growth)
		return err
	})
	return owed, err
}

// Snapshot returns the persisted state of stream.
func (t *Treasury) Snapshot(ctx context.Context, stream string) (*revshare.LedgerState, error) {
	var st *revshare.LedgerState
	err := t.withLedger(ctx, stream, "snapshot", false, func(l *revshare.Ledger) error {
		st = l.State()
		return nil
	})
	return st, err
}

// ---------------------------------------------------------------------------
// Share management
// ---------------------------------------------------------------------------

// AddShares registers new shares. Admin only.
func (t *Treasury) AddShares(ctx context.Context, stream string, caller revshare.Identity, entries []revshare.AccountShareParams) error {
	if err := t.requireAdmin(caller); err != nil {
		return err
	}
	return t.withLedger(ctx, stream, "add", true, func(l *revshare.Ledger) error {
		return l.AddAccountShares(entries)
	})
}

// RemoveShares deactivates the shares of ids. An account may always remove
// itself; anything else needs an admin, who is held to removableAt.
func (t *Treasury) RemoveShares(ctx context.Context, stream string, caller revshare.Identity, ids []revshare.Identity) error {
	self := len(ids) == 1 && ids[0] == caller
	if !self {
		if err := t.requireAdmin(caller); err != nil {
			return err
		}
	}
	return t.withLedger(ctx, stream, "remove", true, func(l *revshare.Ledger) error {
		if self {
			return l.RemoveAccountShareSelf(caller)
		}
		return l.RemoveAccountShares(caller, ids)
	})
}

// IncreaseBps grows the claim of id. Admin only, and never the admin's own claim.
func (t *Treasury) IncreaseBps(ctx context.Context, stream string, caller, id revshare.Identity, delta uint16) (uint16, error) {
	if err := t.requireAdmin(caller); err != nil {
		return 0, err
	}
	var bps uint16
	err := t.withLedger(ctx, stream, "increase", true, func(l *revshare.Ledger) error {
		var err error
		bps, err = l.IncreaseAccountBps(caller, id, delta)
		return err
	})
	return bps, err
}

// DecreaseBps shrinks the claim of id. The account itself or an admin.
func (t *Treasury) DecreaseBps(ctx context.Context, stream string, caller, id revshare.Identity, delta uint16) (uint16, error) {
	if caller != id {
		if err := t.requireAdmin(caller); err != nil {
			return 0, err
		}
	}
	var bps uint16
	err := t.withLedger(ctx, stream, "decrease", true, func(l *revshare.Ledger) error {
		var err error
		bps, err = l.DecreaseAccountBps(caller, id, delta)
		return err
	})
	return bps, err
}

// UpdateRemovableAt changes the lock time of id. The account itself or an admin.
func (t *Treasury) UpdateRemovableAt(ctx context.Context, stream string, caller, id revshare.Identity, removableAt uint64) error {
	if caller != id {
		if err := t.requireAdmin(caller); err != nil {
			return err
		}
	}
	return t.withLedger(ctx, stream, "removable_at", true, func(l *revshare.Ledger) error {
		return l.UpdateAccountRemovableAt(caller, id, removableAt)
	})
}

// ChangeAddress moves the caller's share to newID.
func (t *Treasury) ChangeAddress(ctx context.Context, stream string, caller, newID revshare.Identity, approvals []revshare.Identity) error {
	return t.withLedger(ctx, stream, "change_address", true, func(l *revshare.Ledger) error {
		return l.ChangeAccountAddress(caller, caller, newID, approvals)
	})
}

// Approve lets callers withdraw on behalf of the caller's account.
func (t *Treasury) Approve(ctx context.Context, stream string, caller revshare.Identity, callers []revshare.Identity) error {
	return t.withLedger(ctx, stream, "approve", true, func(l *revshare.Ledger) error {
		l.ApproveForWithdrawal(caller, callers)
		return nil
	})
}

// Revoke withdraws approvals granted by the caller's account.
func (t *Treasury) Revoke(ctx context.Context, stream string, caller revshare.Identity, callers []revshare.Identity) error {
	return t.withLedger(ctx, stream, "revoke", true, func(l *revshare.Ledger) error {
		l.RevokeApproval(caller, callers)
		return nil
	})
}
