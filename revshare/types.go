package revshare

import (
	"math"

	"github.com/holiman/uint256"
)

const (
	// MaxBps is 100% expressed in basis points. It is also the modulus of
	// the remainder carried between balance splits.
	MaxBps = 10000

	// EndIndexActive marks an account share that has not been removed.
	EndIndexActive uint64 = math.MaxUint64

	// checkpointBalanceBits is the width of a checkpoint balance.
	checkpointBalanceBits = 240
)

var (
	maxBpsInt = uint256.NewInt(MaxBps)

	// maxCheckpointBalance is 2^240 - 1.
	maxCheckpointBalance = new(uint256.Int).SubUint64(
		new(uint256.Int).Lsh(uint256.NewInt(1), checkpointBalanceBits), 1)
)

// MaxCheckpointBalance returns the largest balance a single checkpoint can hold.
func MaxCheckpointBalance() *uint256.Int {
	return maxCheckpointBalance.Clone()
}

// Checkpoint records the total claim and the cumulative balance shared under it.
type Checkpoint struct {
	TotalBps uint16      // Sum of active account bps while this checkpoint is latest
	Balance  uint256.Int // Cumulative balance added while this checkpoint is latest
}

// AccountShare is a recipient's claim on a ledger.
type AccountShare struct {
	Bps                   uint16      // Current claim; 0 once removed
	CreatedAt             uint64      // Unix seconds; 0 means never created
	RemovableAt           uint64      // Unix seconds before which others cannot remove or decrease
	LastWithdrawnAt       uint64      // Unix seconds of the last settlement
	StartIndex            uint64      // First checkpoint the claim applies to
	EndIndex              uint64      // Last checkpoint the claim applies to, or EndIndexActive
	LastBalanceCheckIndex uint64      // Replay cursor
	LastBalancePulled     uint256.Int // Balance already consumed at the cursor checkpoint
	Accrued               uint256.Int // Owed amount banked before a resize or removal
}

// IsActive returns true if the share exists and has not been removed.
func (a AccountShare) IsActive() bool {
	return a.CreatedAt != 0 && a.EndIndex == EndIndexActive
}

// IsFinished returns true if the identity can be reused: the share was never
// created, or its cursor has moved past the removal checkpoint.
func (a AccountShare) IsFinished() bool {
	return a.CreatedAt == 0 || a.LastBalanceCheckIndex > a.EndIndex
}

// AccountShareParams describes a share to register.
type AccountShareParams struct {
	Identity    Identity
	Bps         uint16
	RemovableAt uint64
	Approvals   []Identity // Callers allowed to trigger payouts; ZeroIdentity allows anyone
}

// AccountEntry pairs an identity with its share, for listing and snapshots.
type AccountEntry struct {
	Identity Identity
	Share    AccountShare
}

// Approval grants Caller the right to trigger payouts to Account.
type Approval struct {
	Account Identity
	Caller  Identity
}
