package revshare

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
)

// Config configures a Ledger.
type Config struct {
	Name   string          // Revenue stream name, e.g. "deposits"
	Logger *slog.Logger    // optional; defaults to a discarding logger
	Clock  clockwork.Clock // optional; defaults to the real clock
}

// Validate checks required fields and fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Name == "" {
		return errors.New("revshare: ledger name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Ledger splits one revenue stream among a changing set of basis-point claims.
//
// Every method is a single state transition that either completes or returns
// an error without touching state. A Ledger is not safe for concurrent use;
// the host must serialize calls.
type Ledger struct {
	name  string
	log   *slog.Logger
	clock clockwork.Clock

	checkpoints []Checkpoint
	remainder   uint64
	outstanding uint256.Int // allocated to shares but not yet settled

	accounts  map[Identity]*AccountShare
	approvals map[Identity]map[Identity]struct{}
}

// New creates an empty ledger with a single zero checkpoint.
func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		name:        cfg.Name,
		log:         cfg.Logger.With("stream", cfg.Name),
		clock:       cfg.Clock,
		checkpoints: []Checkpoint{{}},
		accounts:    make(map[Identity]*AccountShare),
		approvals:   make(map[Identity]map[Identity]struct{}),
	}, nil
}

// Name returns the revenue stream name.
func (l *Ledger) Name() string { return l.name }

func (l *Ledger) now() uint64 {
	return uint64(l.clock.Now().Unix())
}

// TotalBps returns the sum of bps held by active accounts.
func (l *Ledger) TotalBps() uint16 {
	return l.latest().TotalBps
}

// Remainder returns the scaled fractional carry from the last balance split.
func (l *Ledger) Remainder() uint64 { return l.remainder }

// Outstanding returns the amount allocated to shares that has not been settled.
func (l *Ledger) Outstanding() *uint256.Int {
	return l.outstanding.Clone()
}

// Checkpoints returns a copy of the checkpoint log.
func (l *Ledger) Checkpoints() []Checkpoint {
	return slices.Clone(l.checkpoints)
}

// LatestCheckpoint returns the most recent checkpoint and its index.
func (l *Ledger) LatestCheckpoint() (uint64, Checkpoint) {
	return l.latestIndex(), *l.latest()
}

// AccountDetails returns a copy of the share held by id. A never-created
// identity yields the zero AccountShare.
func (l *Ledger) AccountDetails(id Identity) AccountShare {
	if acct, ok := l.accounts[id]; ok {
		return *acct
	}
	return AccountShare{}
}

// IsFinished reports whether id holds no unsettled share.
func (l *Ledger) IsFinished(id Identity) bool {
	acct, ok := l.accounts[id]
	return !ok || acct.IsFinished()
}

// Accounts returns every known share ordered by identity.
func (l *Ledger) Accounts() []AccountEntry {
	out := make([]AccountEntry, 0, len(l.accounts))
	for id, acct := range l.accounts {
		out = append(out, AccountEntry{Identity: id, Share: *acct})
	}
	slices.SortFunc(out, func(a, b AccountEntry) int { return a.Identity.Compare(b.Identity) })
	return out
}
