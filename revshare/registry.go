package revshare

import (
	"fmt"
)

// AddAccountShares registers a batch of new shares. Every share starts at
// the checkpoint the new total is written to, and the batch changes the
// total claim once.
func (l *Ledger) AddAccountShares(entries []AccountShareParams) error {
	if len(entries) == 0 {
		return ErrEmptySet
	}

	seen := make(map[Identity]struct{}, len(entries))
	total := uint64(l.TotalBps())
	for _, e := range entries {
		if e.Identity.IsZero() {
			return ErrInvalidIdentity
		}
		if e.Bps == 0 {
			return fmt.Errorf("%w: %s has zero bps", ErrInvalidBps, e.Identity)
		}
		if _, dup := seen[e.Identity]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrAccountNotFinished, e.Identity)
		}
		seen[e.Identity] = struct{}{}
		if !l.IsFinished(e.Identity) {
			return fmt.Errorf("%w: %s", ErrAccountNotFinished, e.Identity)
		}
		total += uint64(e.Bps)
	}
	if err := checkTotalBps(total); err != nil {
		return err
	}

	start := l.nextCheckpointIndex()
	now := l.now()
	for _, e := range entries {
		l.accounts[e.Identity] = &AccountShare{
			Bps:                   e.Bps,
			CreatedAt:             now,
			RemovableAt:           e.RemovableAt,
			LastWithdrawnAt:       now,
			StartIndex:            start,
			EndIndex:              EndIndexActive,
			LastBalanceCheckIndex: start,
		}
		l.ApproveForWithdrawal(e.Identity, e.Approvals)
	}
	l.setTotalBps(uint16(total))
	l.log.Debug("added account shares", "count", len(entries), "start_index", start, "total_bps", total)
	return nil
}

// activeAccount returns the share for id or ErrAccountNotActive.
func (l *Ledger) activeAccount(id Identity) (*AccountShare, error) {
	acct, ok := l.accounts[id]
	if !ok || !acct.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotActive, id)
	}
	return acct, nil
}

// checkUnlocked enforces removableAt for callers other than the account itself.
func (l *Ledger) checkUnlocked(caller, id Identity, acct *AccountShare, now uint64) error {
	if caller != id && now < acct.RemovableAt {
		return fmt.Errorf("%w: %s until %d", ErrStillLocked, id, acct.RemovableAt)
	}
	return nil
}

// bank replays acct with its current bps and stores the result in Accrued,
// so a later bps change only affects balances added after it.
func bank(acct *AccountShare, c *cursor) {
	acct.Accrued.Add(&acct.Accrued, &c.owed)
	acct.LastBalanceCheckIndex = c.index
	acct.LastBalancePulled = c.pulled
}

// replayForChange replays acct and checks that the banked amount still fits.
func (l *Ledger) replayForChange(acct *AccountShare) (cursor, error) {
	c, err := replay(l.checkpoints, acct)
	if err != nil {
		return cursor{}, err
	}
	if _, err := owedWithAccrued(&c, acct); err != nil {
		return cursor{}, err
	}
	return c, nil
}

// RemoveAccountShares deactivates the shares of ids. Callers other than the
// account itself are held to each share's removableAt.
func (l *Ledger) RemoveAccountShares(caller Identity, ids []Identity) error {
	if len(ids) == 0 {
		return ErrEmptySet
	}

	now := l.now()
	accts := make([]*AccountShare, len(ids))
	cursors := make([]cursor, len(ids))
	seen := make(map[Identity]struct{}, len(ids))
	var removed uint64
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrAccountNotActive, id)
		}
		seen[id] = struct{}{}
		acct, err := l.activeAccount(id)
		if err != nil {
			return err
		}
		if err := l.checkUnlocked(caller, id, acct, now); err != nil {
			return err
		}
		c, err := l.replayForChange(acct)
		if err != nil {
			return err
		}
		accts[i], cursors[i] = acct, c
		removed += uint64(acct.Bps)
	}

	end := l.latestIndex()
	for i, acct := range accts {
		bank(acct, &cursors[i])
		acct.Bps = 0
		acct.EndIndex = end
	}
	total := uint64(l.TotalBps()) - removed
	l.setTotalBps(uint16(total))
	l.log.Debug("removed account shares", "caller", caller, "count", len(ids), "end_index", end, "total_bps", total)
	return nil
}

// RemoveAccountShareSelf removes the caller's own share regardless of its lock.
func (l *Ledger) RemoveAccountShareSelf(caller Identity) error {
	return l.RemoveAccountShares(caller, []Identity{caller})
}

// IncreaseAccountBps grows the claim of id by delta and returns the new bps.
// An account cannot grow its own claim.
func (l *Ledger) IncreaseAccountBps(caller, id Identity, delta uint16) (uint16, error) {
	if caller == id {
		return 0, fmt.Errorf("%w: %s cannot increase its own bps", ErrUnauthorized, id)
	}
	acct, err := l.activeAccount(id)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, fmt.Errorf("%w: zero delta", ErrInvalidBps)
	}
	total := uint64(l.TotalBps()) + uint64(delta)
	if err := checkTotalBps(total); err != nil {
		return 0, err
	}
	c, err := l.replayForChange(acct)
	if err != nil {
		return 0, err
	}

	bank(acct, &c)
	acct.Bps += delta
	l.setTotalBps(uint16(total))
	l.log.Debug("increased account bps", "caller", caller, "account", id, "bps", acct.Bps, "total_bps", total)
	return acct.Bps, nil
}

// DecreaseAccountBps shrinks the claim of id by delta and returns the new
// bps. Use removal to drop a claim entirely.
func (l *Ledger) DecreaseAccountBps(caller, id Identity, delta uint16) (uint16, error) {
	acct, err := l.activeAccount(id)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, fmt.Errorf("%w: zero delta", ErrInvalidBps)
	}
	if delta >= acct.Bps {
		return 0, fmt.Errorf("%w: %s holds %d bps", ErrCannotZeroViaDecrease, id, acct.Bps)
	}
	if err := l.checkUnlocked(caller, id, acct, l.now()); err != nil {
		return 0, err
	}
	c, err := l.replayForChange(acct)
	if err != nil {
		return 0, err
	}

	bank(acct, &c)
	acct.Bps -= delta
	total := l.TotalBps() - delta
	l.setTotalBps(total)
	l.log.Debug("decreased account bps", "account", id, "bps", acct.Bps, "total_bps", total)
	return acct.Bps, nil
}

// UpdateAccountRemovableAt changes the lock time of id. The account itself
// may only bring the time forward; anyone else may only push it back.
func (l *Ledger) UpdateAccountRemovableAt(caller, id Identity, removableAt uint64) error {
	acct, err := l.activeAccount(id)
	if err != nil {
		return err
	}
	if caller == id && removableAt > acct.RemovableAt {
		return fmt.Errorf("%w: account may only decrease its own removableAt", ErrUnauthorized)
	}
	if caller != id && removableAt < acct.RemovableAt {
		return fmt.Errorf("%w: only the account may decrease its removableAt", ErrUnauthorized)
	}

	acct.RemovableAt = removableAt
	l.log.Debug("updated removable at", "account", id, "caller", caller, "removable_at", removableAt)
	return nil
}

// ChangeAccountAddress moves the share held by oldID to newID. Only oldID may
// do so. A wildcard approval on oldID carries over; approvals lists extra
// callers for newID.
func (l *Ledger) ChangeAccountAddress(caller, oldID, newID Identity, approvals []Identity) error {
	if caller != oldID {
		return fmt.Errorf("%w: only %s may move its share", ErrUnauthorized, oldID)
	}
	if newID.IsZero() || newID == oldID {
		return ErrInvalidIdentity
	}
	acct, ok := l.accounts[oldID]
	if !ok || acct.IsFinished() {
		return fmt.Errorf("%w: %s", ErrAccountNotActive, oldID)
	}
	if !l.IsFinished(newID) {
		return fmt.Errorf("%w: %s", ErrAccountNotFinished, newID)
	}

	_, wildcard := l.approvals[oldID][ZeroIdentity]
	l.accounts[newID] = acct
	delete(l.accounts, oldID)
	delete(l.approvals, oldID)
	if wildcard {
		l.ApproveForWithdrawal(newID, []Identity{ZeroIdentity})
	}
	l.ApproveForWithdrawal(newID, approvals)
	l.log.Debug("changed account address", "from", oldID, "to", newID)
	return nil
}
