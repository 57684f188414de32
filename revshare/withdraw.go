package revshare

import (
	"fmt"
	"slices"

	"github.com/holiman/uint256"
)

// cursor is the outcome of replaying an account over the checkpoint log.
type cursor struct {
	owed   uint256.Int
	index  uint64
	pulled uint256.Int
}

// replay walks cps from the account's cursor and sums the account's cut of
// every balance it has not yet consumed. An active account stops on the
// latest checkpoint; a removed account moves one past its EndIndex, which is
// what marks it finished.
func replay(cps []Checkpoint, acct *AccountShare) (cursor, error) {
	c := cursor{index: acct.LastBalanceCheckIndex, pulled: acct.LastBalancePulled}
	latest := uint64(len(cps) - 1)
	active := acct.EndIndex == EndIndexActive
	bps := uint256.NewInt(uint64(acct.Bps))

	for c.index <= acct.EndIndex && c.index <= latest {
		cp := &cps[c.index]
		if cp.Balance.Gt(&c.pulled) && cp.TotalBps > 0 {
			diff := new(uint256.Int).Sub(&cp.Balance, &c.pulled)
			// bps <= TotalBps, so the share never exceeds diff.
			share, _ := new(uint256.Int).MulDivOverflow(diff, bps, uint256.NewInt(uint64(cp.TotalBps)))
			if _, overflow := c.owed.AddOverflow(&c.owed, share); overflow {
				return cursor{}, fmt.Errorf("%w: owed balance", ErrAmountOverflow)
			}
		}
		if active && c.index == latest {
			c.pulled = cp.Balance
			break
		}
		c.pulled.Clear()
		c.index++
	}
	return c, nil
}

// owedWithAccrued adds the banked amount to a replay result.
func owedWithAccrued(c *cursor, acct *AccountShare) (*uint256.Int, error) {
	total, overflow := new(uint256.Int).AddOverflow(&c.owed, &acct.Accrued)
	if overflow {
		return nil, fmt.Errorf("%w: owed balance", ErrAmountOverflow)
	}
	return total, nil
}

// Settle computes the amount owed to id, advances its cursor and returns the
// amount. The host must transfer the amount as the direct continuation of
// this call. Callers other than id need an approval from id.
func (l *Ledger) Settle(caller, id Identity) (*uint256.Int, error) {
	if !l.canWithdraw(caller, id) {
		return nil, fmt.Errorf("%w: %s cannot withdraw for %s", ErrUnauthorized, caller, id)
	}
	acct, ok := l.accounts[id]
	if !ok || acct.IsFinished() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, id)
	}
	c, err := replay(l.checkpoints, acct)
	if err != nil {
		return nil, err
	}
	owed, err := owedWithAccrued(&c, acct)
	if err != nil {
		return nil, err
	}
	if err := ValidateConservation(&l.outstanding, owed); err != nil {
		return nil, err
	}

	l.outstanding.Sub(&l.outstanding, owed)
	acct.LastBalanceCheckIndex = c.index
	acct.LastBalancePulled = c.pulled
	acct.Accrued.Clear()
	acct.LastWithdrawnAt = l.now()
	l.log.Debug("settled account", "account", id, "caller", caller, "owed", owed.Dec(),
		"cursor", c.index, "finished", acct.IsFinished())
	return owed, nil
}

// PreviewBalance returns what Settle would pay id now, without moving its
// cursor. Finished accounts preview zero.
func (l *Ledger) PreviewBalance(id Identity) (*uint256.Int, error) {
	return l.preview(l.checkpoints, id)
}

// PredictedBalance is PreviewBalance after a hypothetical ProcessBalance of
// growth. The estimate uses the current remainder, so it may differ from a
// later settlement by the rounding of any growth registered in between.
func (l *Ledger) PredictedBalance(id Identity, growth *uint256.Int) (*uint256.Int, error) {
	if growth == nil {
		return nil, fmt.Errorf("%w: growth", ErrNilParam)
	}
	cps := l.checkpoints
	if total := l.TotalBps(); total > 0 && !growth.IsZero() {
		shares, _ := splitByBps(growth, total, l.remainder)
		cps = appendBalance(slices.Clone(cps), shares)
	}
	return l.preview(cps, id)
}

func (l *Ledger) preview(cps []Checkpoint, id Identity) (*uint256.Int, error) {
	acct, ok := l.accounts[id]
	if !ok || acct.IsFinished() {
		return new(uint256.Int), nil
	}
	c, err := replay(cps, acct)
	if err != nil {
		return nil, err
	}
	return owedWithAccrued(&c, acct)
}
