package revshare

import (
	"fmt"

	"github.com/holiman/uint256"
)

// splitByBps returns the portion of amount due to a bps claim together with
// the new carry. The carry is kept in units of amount*bps so that, for a
// constant claim, the sum of every split equals floor(total*bps/MaxBps).
func splitByBps(amount *uint256.Int, bps uint16, carry uint64) (*uint256.Int, uint64) {
	b := uint256.NewInt(uint64(bps))
	// bps <= MaxBps, so the quotient never exceeds amount.
	shares, _ := new(uint256.Int).MulDivOverflow(amount, b, maxBpsInt)
	scaled := new(uint256.Int).MulMod(amount, b, maxBpsInt).Uint64() + carry
	shares.AddUint64(shares, scaled/MaxBps)
	return shares, scaled % MaxBps
}

// ProcessBalance registers pool growth of amount and returns the portion
// allocated to shares. The host must earmark the returned amount for
// payouts. It is a no-op returning zero while no claims are active.
func (l *Ledger) ProcessBalance(amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: amount", ErrNilParam)
	}
	total := l.TotalBps()
	if total == 0 || amount.IsZero() {
		return new(uint256.Int), nil
	}
	shares, carry := splitByBps(amount, total, l.remainder)
	outstanding, overflow := new(uint256.Int).AddOverflow(&l.outstanding, shares)
	if overflow {
		return nil, fmt.Errorf("%w: outstanding balance", ErrAmountOverflow)
	}

	l.remainder = carry
	l.outstanding = *outstanding
	l.addBalance(shares)
	l.log.Debug("processed balance",
		"amount", amount.Dec(), "allocated", shares.Dec(), "total_bps", total, "remainder", carry)
	return shares, nil
}

// AddBalanceToShares adds amount directly to the shares without a bps split
// and returns the amount added. Nothing is added while no claims are active.
func (l *Ledger) AddBalanceToShares(amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: amount", ErrNilParam)
	}
	if l.TotalBps() == 0 || amount.IsZero() {
		return new(uint256.Int), nil
	}
	outstanding, overflow := new(uint256.Int).AddOverflow(&l.outstanding, amount)
	if overflow {
		return nil, fmt.Errorf("%w: outstanding balance", ErrAmountOverflow)
	}

	l.outstanding = *outstanding
	l.addBalance(amount)
	l.log.Debug("added balance to shares", "amount", amount.Dec())
	return amount.Clone(), nil
}
