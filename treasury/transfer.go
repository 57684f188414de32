package treasury

import (
	"context"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/bitfsorg/libtreasury-go/revshare"
)

// Transferer moves settled funds to a recipient. It is called after the
// ledger has recorded the settlement, exactly once per payout.
type Transferer interface {
	Transfer(ctx context.Context, p *Payout) error
}

// LogTransferer records payouts in the log without moving any funds.
// It stands in for a chain integration in tools and tests.
type LogTransferer struct {
	Logger *slog.Logger
}

// Compile-time interface check.
var _ Transferer = (*LogTransferer)(nil)

// Transfer logs the payout.
func (lt *LogTransferer) Transfer(ctx context.Context, p *Payout) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := lt.Logger
	if log == nil {
		log = slog.Default()
	}
	addr, err := p.Account.Address(true)
	if err != nil {
		addr = p.Account.String()
	}
	log.InfoContext(ctx, "transfer", "payout", p.ID, "stream", p.Stream, "to", addr, "amount", p.Amount.Dec())
	return nil
}

// TransferFunc adapts a function to the Transferer interface.
type TransferFunc func(ctx context.Context, to revshare.Identity, amount *uint256.Int) error

// Transfer calls f with the payout recipient and amount.
func (f TransferFunc) Transfer(ctx context.Context, p *Payout) error {
	return f(ctx, p.Account, p.Amount)
}
