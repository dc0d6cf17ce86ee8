package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peerpay/ledgercore/internal/domain"
)

// Identity roles. Admin may credit deposits; members hold and move their own
// funds.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Identity is the principal that owns accounts. Only the stable id matters
// for authorization; display attributes live outside the core.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account holds funds for exactly one identity. Available and Escrowed are
// both non-negative micros; Available+Escrowed only changes through external
// deposits or settlement of an accepted transfer.
type Account struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	Currency        string    `json:"currency"`
	AvailableMicros int64     `json:"available_micros"`
	EscrowedMicros  int64     `json:"escrowed_micros"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BalanceSnapshot is a consistent point-in-time view of one account's funds.
type BalanceSnapshot struct {
	AccountID uuid.UUID       `json:"account_id"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Escrowed  decimal.Decimal `json:"escrowed"`
}

// BalanceUpdate carries one account's new balances for a paired store write.
type BalanceUpdate struct {
	AccountID       uuid.UUID
	AvailableMicros int64
	EscrowedMicros  int64
	UpdatedAt       time.Time
}

// NewBalanceSnapshot builds a snapshot from micro amounts.
func NewBalanceSnapshot(accountID uuid.UUID, currency string, availableMicros, escrowedMicros int64) BalanceSnapshot {
	return BalanceSnapshot{
		AccountID: accountID,
		Currency:  currency,
		Available: domain.NewMoney(availableMicros, currency).ToDecimal(),
		Escrowed:  domain.NewMoney(escrowedMicros, currency).ToDecimal(),
	}
}

// Transfer is a proposed movement of funds awaiting the receiver's decision.
// Amount is immutable after creation; Status moves exactly once away from
// Pending.
type Transfer struct {
	ID                uuid.UUID             `json:"id"`
	SenderAccountID   uuid.UUID             `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID             `json:"receiver_account_id"`
	AmountMicros      int64                 `json:"amount_micros"`
	Currency          string                `json:"currency"`
	Description       string                `json:"description"`
	Status            domain.TransferStatus `json:"status"`
	CreatedAt         time.Time             `json:"created_at"`
	DecidedAt         *time.Time            `json:"decided_at,omitempty"`
}

// Amount returns the transfer amount as Money.
func (t *Transfer) Amount() domain.Money {
	return domain.NewMoney(t.AmountMicros, t.Currency)
}

// Notification is the record the notification collaborator keeps for an
// identity after consuming a transfer event.
type Notification struct {
	ID         uuid.UUID        `json:"id"`
	IdentityID uuid.UUID        `json:"identity_id"`
	TransferID uuid.UUID        `json:"transfer_id"`
	Kind       domain.EventKind `json:"kind"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	Read       bool             `json:"read"`
	CreatedAt  time.Time        `json:"created_at"`
}
