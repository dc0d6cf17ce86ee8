package domain

import "errors"

// Error taxonomy returned by the ledger core. Callers branch on these with
// errors.Is; none of them are retried inside the core.
var (
	// ErrInvalidAmount rejects non-positive amounts before any mutation.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrUnauthorized means the acting identity does not own the account.
	ErrUnauthorized = errors.New("identity does not own account")

	// ErrAccountNotFound means the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransferNotFound means the referenced transfer does not exist.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrInsufficientFunds is an expected business outcome, not a fault:
	// the sender's available balance cannot cover the escrow.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyFinalized means a decision arrived after the transfer
	// reached a terminal state. The operation is a no-op.
	ErrAlreadyFinalized = errors.New("transfer already finalized")

	// ErrCurrencyMismatch means sender and receiver accounts hold
	// different currencies. Conversion is out of scope.
	ErrCurrencyMismatch = errors.New("account currencies do not match")

	// ErrSameAccount rejects transfers from an account to itself.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrInternalInconsistency signals a ledger invariant violation, such
	// as settling more than was escrowed. It aborts the single offending
	// mutation and must never be swallowed.
	ErrInternalInconsistency = errors.New("ledger invariant violated")
)
