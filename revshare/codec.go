package revshare

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"golang.org/x/crypto/blake2b"
)

const (
	ledgerStateVersion = 1

	// version(1) + name_len(2)
	stateHeaderSize = 1 + 2

	// remainder(2) + outstanding(32)
	stateTotalsSize = 2 + 32

	// total_bps(2) + balance(32)
	checkpointEntrySize = 2 + 32

	// identity(20) + bps(2) + six u64 fields + pulled(32) + accrued(32)
	accountEntrySize = 20 + 2 + 6*8 + 32 + 32

	// account(20) + caller(20)
	approvalEntrySize = 20 + 20

	countSize    = 4
	checksumSize = blake2b.Size256
)

// LedgerState is the complete persistent state of one Ledger.
type LedgerState struct {
	Name        string
	Remainder   uint64
	Outstanding [32]byte // big-endian 256-bit amount
	Checkpoints []Checkpoint
	Accounts    []AccountEntry // ordered by identity
	Approvals   []Approval     // ordered by account, then caller
}

// State captures the ledger for persistence.
func (l *Ledger) State() *LedgerState {
	st := &LedgerState{
		Name:        l.name,
		Remainder:   l.remainder,
		Outstanding: l.outstanding.Bytes32(),
		Checkpoints: l.Checkpoints(),
		Accounts:    l.Accounts(),
	}
	for account, set := range l.approvals {
		for caller := range set {
			st.Approvals = append(st.Approvals, Approval{Account: account, Caller: caller})
		}
	}
	slices.SortFunc(st.Approvals, func(a, b Approval) int {
		if c := a.Account.Compare(b.Account); c != 0 {
			return c
		}
		return a.Caller.Compare(b.Caller)
	})
	return st
}

// Restore rebuilds a ledger from st. cfg.Name defaults to st.Name.
// The restored ledger must satisfy CheckInvariants.
func Restore(cfg Config, st *LedgerState) (*Ledger, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: ledger state", ErrNilParam)
	}
	if cfg.Name == "" {
		cfg.Name = st.Name
	}
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if len(st.Checkpoints) == 0 {
		return nil, fmt.Errorf("%w: no checkpoints", ErrInvalidLedgerData)
	}
	l.checkpoints = slices.Clone(st.Checkpoints)
	l.remainder = st.Remainder
	l.outstanding.SetBytes32(st.Outstanding[:])
	for _, e := range st.Accounts {
		share := e.Share
		l.accounts[e.Identity] = &share
	}
	for _, a := range st.Approvals {
		l.ApproveForWithdrawal(a.Account, []Identity{a.Caller})
	}
	if err := l.CheckInvariants(); err != nil {
		return nil, err
	}
	return l, nil
}

// EncodeLedgerState serializes st to a fixed big-endian layout followed by a
// BLAKE2b-256 checksum of everything before it.
func EncodeLedgerState(st *LedgerState) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: ledger state", ErrNilParam)
	}
	if len(st.Name) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: name is %d bytes", ErrInvalidLedgerData, len(st.Name))
	}
	if st.Remainder >= MaxBps {
		return nil, fmt.Errorf("%w: remainder %d", ErrInvalidLedgerData, st.Remainder)
	}
	for _, n := range []int{len(st.Checkpoints), len(st.Accounts), len(st.Approvals)} {
		if n > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d entries", ErrInvalidLedgerData, n)
		}
	}

	size := stateHeaderSize + len(st.Name) + stateTotalsSize +
		countSize + checkpointEntrySize*len(st.Checkpoints) +
		countSize + accountEntrySize*len(st.Accounts) +
		countSize + approvalEntrySize*len(st.Approvals) + checksumSize
	buf := make([]byte, size)
	offset := 0

	buf[offset] = ledgerStateVersion
	offset++
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(st.Name)))
	offset += 2
	offset += copy(buf[offset:], st.Name)

	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(st.Remainder))
	offset += 2
	offset += copy(buf[offset:offset+32], st.Outstanding[:])

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(st.Checkpoints)))
	offset += 4
	for _, cp := range st.Checkpoints {
		binary.BigEndian.PutUint16(buf[offset:offset+2], cp.TotalBps)
		offset += 2
		bal := cp.Balance.Bytes32()
		offset += copy(buf[offset:offset+32], bal[:])
	}

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(st.Accounts)))
	offset += 4
	for _, e := range st.Accounts {
		offset += copy(buf[offset:offset+20], e.Identity[:])
		binary.BigEndian.PutUint16(buf[offset:offset+2], e.Share.Bps)
		offset += 2
		for _, v := range []uint64{
			e.Share.CreatedAt, e.Share.RemovableAt, e.Share.LastWithdrawnAt,
			e.Share.StartIndex, e.Share.EndIndex, e.Share.LastBalanceCheckIndex,
		} {
			binary.BigEndian.PutUint64(buf[offset:offset+8], v)
			offset += 8
		}
		pulled := e.Share.LastBalancePulled.Bytes32()
		offset += copy(buf[offset:offset+32], pulled[:])
		accrued := e.Share.Accrued.Bytes32()
		offset += copy(buf[offset:offset+32], accrued[:])
	}

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(st.Approvals)))
	offset += 4
	for _, a := range st.Approvals {
		offset += copy(buf[offset:offset+20], a.Account[:])
		offset += copy(buf[offset:offset+20], a.Caller[:])
	}

	sum := blake2b.Sum256(buf[:offset])
	copy(buf[offset:], sum[:])
	return buf, nil
}

// DecodeLedgerState parses data produced by EncodeLedgerState.
func DecodeLedgerState(data []byte) (*LedgerState, error) {
	if len(data) < stateHeaderSize+stateTotalsSize+3*countSize+checksumSize {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidLedgerData, len(data))
	}
	body := data[:len(data)-checksumSize]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:], data[len(body):]) {
		return nil, ErrChecksumMismatch
	}

	r := &stateReader{buf: body}
	if v := r.u8(); v != ledgerStateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidLedgerData, v)
	}
	st := &LedgerState{}
	st.Name = string(r.next(int(r.u16())))
	st.Remainder = uint64(r.u16())
	copy(st.Outstanding[:], r.next(32))

	n := int(r.u32())
	if !r.fits(n, checkpointEntrySize) {
		return nil, fmt.Errorf("%w: truncated checkpoints (%d)", ErrInvalidLedgerData, n)
	}
	st.Checkpoints = make([]Checkpoint, n)
	for i := range st.Checkpoints {
		st.Checkpoints[i].TotalBps = r.u16()
		st.Checkpoints[i].Balance.SetBytes32(r.next(32))
	}

	n = int(r.u32())
	if !r.fits(n, accountEntrySize) {
		return nil, fmt.Errorf("%w: truncated accounts (%d)", ErrInvalidLedgerData, n)
	}
	st.Accounts = make([]AccountEntry, n)
	for i := range st.Accounts {
		e := &st.Accounts[i]
		copy(e.Identity[:], r.next(20))
		e.Share.Bps = r.u16()
		e.Share.CreatedAt = r.u64()
		e.Share.RemovableAt = r.u64()
		e.Share.LastWithdrawnAt = r.u64()
		e.Share.StartIndex = r.u64()
		e.Share.EndIndex = r.u64()
		e.Share.LastBalanceCheckIndex = r.u64()
		e.Share.LastBalancePulled.SetBytes32(r.next(32))
		e.Share.Accrued.SetBytes32(r.next(32))
	}

	n = int(r.u32())
	if !r.fits(n, approvalEntrySize) {
		return nil, fmt.Errorf("%w: truncated approvals (%d)", ErrInvalidLedgerData, n)
	}
	st.Approvals = make([]Approval, n)
	for i := range st.Approvals {
		copy(st.Approvals[i].Account[:], r.next(20))
		copy(st.Approvals[i].Caller[:], r.next(20))
	}

	if r.err {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidLedgerData)
	}
	if r.off != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLedgerData, len(body)-r.off)
	}
	return st, nil
}

// stateReader reads big-endian fields and latches err on a short buffer.
type stateReader struct {
	buf []byte
	off int
	err bool
}

func (r *stateReader) next(n int) []byte {
	if r.err || n < 0 || r.off+n > len(r.buf) {
		r.err = true
		return make([]byte, max(n, 0))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *stateReader) fits(count, size int) bool {
	return !r.err && count <= (len(r.buf)-r.off)/size
}

func (r *stateReader) u8() uint8 { return r.next(1)[0] }

func (r *stateReader) u16() uint16 { return binary.BigEndian.Uint16(r.next(2)) }

func (r *stateReader) u32() uint32 { return binary.BigEndian.Uint32(r.next(4)) }

func (r *stateReader) u64() uint64 { return binary.BigEndian.Uint64(r.next(8)) }
