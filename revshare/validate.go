package revshare

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ValidateConservation checks that the payouts together do not exceed the
// amount allocated to shares.
func ValidateConservation(allocated *uint256.Int, payouts ...*uint256.Int) error {
	var paid uint256.Int
	for _, p := range payouts {
		if _, overflow := paid.AddOverflow(&paid, p); overflow {
			return fmt.Errorf("%w: payouts overflow", ErrConservationViolation)
		}
	}
	if paid.Gt(allocated) {
		return fmt.Errorf("%w: allocated=%s paid=%s", ErrConservationViolation, allocated.Dec(), paid.Dec())
	}
	return nil
}

// CheckInvariants verifies the ledger's accounting invariants and returns
// the first violation found.
func (l *Ledger) CheckInvariants() error {
	if len(l.checkpoints) == 0 {
		return fmt.Errorf("%w: empty checkpoint log", ErrInvariantViolation)
	}
	if l.remainder >= MaxBps {
		return fmt.Errorf("%w: remainder %d >= %d", ErrInvariantViolation, l.remainder, MaxBps)
	}

	var shared uint256.Int
	sharedOverflow := false
	for i := range l.checkpoints {
		cp := &l.checkpoints[i]
		if cp.TotalBps > MaxBps {
			return fmt.Errorf("%w: checkpoint %d total bps %d", ErrInvariantViolation, i, cp.TotalBps)
		}
		if cp.Balance.Gt(maxCheckpointBalance) {
			return fmt.Errorf("%w: checkpoint %d balance above ceiling", ErrInvariantViolation, i)
		}
		if cp.TotalBps > 0 && !sharedOverflow {
			_, sharedOverflow = shared.AddOverflow(&shared, &cp.Balance)
		}
	}

	var active uint64
	latest := l.latestIndex()
	for id, acct := range l.accounts {
		if acct.IsActive() {
			active += uint64(acct.Bps)
		}
		if acct.IsFinished() {
			continue
		}
		if acct.LastBalanceCheckIndex > latest {
			return fmt.Errorf("%w: %s cursor %d past latest %d", ErrInvariantViolation, id, acct.LastBalanceCheckIndex, latest)
		}
		if acct.LastBalancePulled.Gt(&l.checkpoints[acct.LastBalanceCheckIndex].Balance) {
			return fmt.Errorf("%w: %s pulled more than checkpoint %d holds", ErrInvariantViolation, id, acct.LastBalanceCheckIndex)
		}
		if !acct.IsActive() && acct.Bps != 0 {
			return fmt.Errorf("%w: removed account %s holds %d bps", ErrInvariantViolation, id, acct.Bps)
		}
	}
	if active != uint64(l.TotalBps()) {
		return fmt.Errorf("%w: active bps %d != total bps %d", ErrInvariantViolation, active, l.TotalBps())
	}
	if sharedOverflow {
		return nil
	}
	if err := ValidateConservation(&shared, &l.outstanding); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	return nil
}
