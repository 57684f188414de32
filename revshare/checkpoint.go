package revshare

import (
	"fmt"

	"github.com/holiman/uint256"
)

func (l *Ledger) latestIndex() uint64 {
	return uint64(len(l.checkpoints) - 1)
}

func (l *Ledger) latest() *Checkpoint {
	return &l.checkpoints[len(l.checkpoints)-1]
}

// nextCheckpointIndex returns the index a total bps change will write to:
// the latest checkpoint while it is still empty, otherwise a new one.
func (l *Ledger) nextCheckpointIndex() uint64 {
	if l.latest().Balance.IsZero() {
		return l.latestIndex()
	}
	return l.latestIndex() + 1
}

func checkTotalBps(total uint64) error {
	if total > MaxBps {
		return fmt.Errorf("%w: %d", ErrClaimOverflow, total)
	}
	return nil
}

// setTotalBps records a new total claim. An empty latest checkpoint is
// rewritten in place so the log only grows when a claim change follows
// actual balance growth. Callers validate total with checkTotalBps first.
func (l *Ledger) setTotalBps(total uint16) {
	cp := l.latest()
	if cp.Balance.IsZero() {
		cp.TotalBps = total
		return
	}
	l.checkpoints = append(l.checkpoints, Checkpoint{TotalBps: total})
}

// appendBalance adds amount to the latest checkpoint of cps. A checkpoint
// that would pass maxCheckpointBalance is saturated and the rest continues
// in a new checkpoint with the same total.
func appendBalance(cps []Checkpoint, amount *uint256.Int) []Checkpoint {
	rest := amount.Clone()
	for !rest.IsZero() {
		cp := &cps[len(cps)-1]
		room := new(uint256.Int).Sub(maxCheckpointBalance, &cp.Balance)
		if rest.Cmp(room) <= 0 {
			cp.Balance.Add(&cp.Balance, rest)
			break
		}
		cp.Balance.Set(maxCheckpointBalance)
		rest.Sub(rest, room)
		cps = append(cps, Checkpoint{TotalBps: cp.TotalBps})
	}
	return cps
}

func (l *Ledger) addBalance(amount *uint256.Int) {
	l.checkpoints = appendBalance(l.checkpoints, amount)
}
