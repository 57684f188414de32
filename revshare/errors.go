package revshare

import "errors"

var (
	// ErrEmptySet indicates a batch operation was called with no entries.
	ErrEmptySet = errors.New("revshare: empty set")

	// ErrInvalidIdentity indicates the null identity was supplied where a recipient is required.
	ErrInvalidIdentity = errors.New("revshare: invalid identity")

	// ErrInvalidBps indicates a zero basis-point claim or a zero resize delta.
	ErrInvalidBps = errors.New("revshare: invalid basis points")

	// ErrClaimOverflow indicates the total claim would exceed MaxBps.
	ErrClaimOverflow = errors.New("revshare: total claim exceeds 10000 bps")

	// ErrAccountNotFinished indicates the identity still holds an unsettled share.
	ErrAccountNotFinished = errors.New("revshare: account share not finished")

	// ErrAccountNotActive indicates the account share was never created or has been removed.
	ErrAccountNotActive = errors.New("revshare: account share not active")

	// ErrAlreadySettled indicates the account has consumed every checkpoint it is owed.
	ErrAlreadySettled = errors.New("revshare: account share already settled")

	// ErrCannotZeroViaDecrease indicates a decrease would leave the account with zero bps.
	ErrCannotZeroViaDecrease = errors.New("revshare: cannot decrease bps to zero, remove the account instead")

	// ErrUnauthorized indicates the caller may not perform the operation.
	ErrUnauthorized = errors.New("revshare: unauthorized")

	// ErrStillLocked indicates the account cannot be removed or decreased before its removableAt time.
	ErrStillLocked = errors.New("revshare: account share still locked")

	// ErrAmountOverflow indicates an amount does not fit in 256 bits.
	ErrAmountOverflow = errors.New("revshare: amount overflow")

	// ErrInvariantViolation indicates the ledger state is internally inconsistent.
	ErrInvariantViolation = errors.New("revshare: invariant violated")

	// ErrConservationViolation indicates payouts exceed what was allocated to shares.
	ErrConservationViolation = errors.New("revshare: payout conservation violated")

	// ErrInvalidLedgerData indicates an encoded ledger snapshot is malformed.
	ErrInvalidLedgerData = errors.New("revshare: invalid ledger data")

	// ErrChecksumMismatch indicates an encoded ledger snapshot failed its integrity check.
	ErrChecksumMismatch = errors.New("revshare: ledger checksum mismatch")

	// ErrLedgerNotFound indicates no ledger is stored under the requested name.
	ErrLedgerNotFound = errors.New("revshare: ledger not found")

	// ErrStoreLocked indicates another process holds the ledger database open.
	ErrStoreLocked = errors.New("revshare: ledger store locked by another process")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("revshare: required parameter is nil")
)
