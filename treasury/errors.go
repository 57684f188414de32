package treasury

import "errors"

var (
	// ErrUnknownStream indicates the requested revenue stream is not configured.
	ErrUnknownStream = errors.New("treasury: unknown stream")

	// ErrNotAdmin indicates the caller needs admin rights for the operation.
	ErrNotAdmin = errors.New("treasury: caller is not an admin")

	// ErrInsufficientEarmark indicates a payout exceeds the funds earmarked for shares.
	ErrInsufficientEarmark = errors.New("treasury: insufficient earmarked funds")

	// ErrTransferFailed indicates the ledger settled but the transfer did not go through.
	ErrTransferFailed = errors.New("treasury: transfer failed")

	// ErrLockHeld indicates another process holds the treasury lock and the
	// treasury was configured to fail fast.
	ErrLockHeld = errors.New("treasury: lock held by another process")

	// ErrNoStore indicates the treasury was configured without a ledger store.
	ErrNoStore = errors.New("treasury: ledger store is required")

	// ErrNoStreams indicates the treasury was configured without revenue streams.
	ErrNoStreams = errors.New("treasury: at least one stream is required")
)
