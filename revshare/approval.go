package revshare

// ApproveForWithdrawal lets each of callers trigger payouts to account.
// Approving ZeroIdentity lets anyone do so.
func (l *Ledger) ApproveForWithdrawal(account Identity, callers []Identity) {
	if account.IsZero() || len(callers) == 0 {
		return
	}
	set, ok := l.approvals[account]
	if !ok {
		set = make(map[Identity]struct{}, len(callers))
		l.approvals[account] = set
	}
	for _, c := range callers {
		set[c] = struct{}{}
	}
	l.log.Debug("approved withdrawal callers", "account", account, "count", len(callers))
}

// RevokeApproval removes approvals previously granted by account.
func (l *Ledger) RevokeApproval(account Identity, callers []Identity) {
	set, ok := l.approvals[account]
	if !ok {
		return
	}
	for _, c := range callers {
		delete(set, c)
	}
	if len(set) == 0 {
		delete(l.approvals, account)
	}
	l.log.Debug("revoked withdrawal callers", "account", account, "count", len(callers))
}

// IsApproved reports whether caller may trigger payouts to account, either
// through an explicit approval or the ZeroIdentity wildcard.
func (l *Ledger) IsApproved(account, caller Identity) bool {
	set, ok := l.approvals[account]
	if !ok {
		return false
	}
	if _, ok := set[caller]; ok {
		return true
	}
	_, wildcard := set[ZeroIdentity]
	return wildcard
}

func (l *Ledger) canWithdraw(caller, account Identity) bool {
	return (caller == account && !caller.IsZero()) || l.IsApproved(account, caller)
}
