package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/ledger"
	"github.com/peerpay/ledgercore/internal/models"
)

type AccountService struct {
	ledger     *ledger.Ledger
	identities IdentityStore
	guard      *OwnershipGuard
}

func NewAccountService(l *ledger.Ledger, identities IdentityStore, guard *OwnershipGuard) *AccountService {
	return &AccountService{
		ledger:     l,
		identities: identities,
		guard:      guard,
	}
}

// CreateAccount opens an empty account for the identity in the given
// currency.
func (s *AccountService) CreateAccount(ctx context.Context, ownerID uuid.UUID, currency string) (models.Account, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return models.Account{}, fmt.Errorf("invalid currency %q", currency)
	}
	if _, err := s.identities.GetIdentity(ctx, ownerID); err != nil {
		return models.Account{}, fmt.Errorf("resolve owner: %w", err)
	}
	return s.ledger.CreateAccount(ctx, ownerID, currency)
}

// Deposit credits external funds onto an account. Admin-only; the handler
// enforces the role, this enforces the amount.
func (s *AccountService) Deposit(ctx context.Context, accountID uuid.UUID, amountMicros int64) (models.BalanceSnapshot, error) {
	if err := s.ledger.Deposit(ctx, accountID, amountMicros); err != nil {
		return models.BalanceSnapshot{}, err
	}
	return s.ledger.Snapshot(accountID)
}

// Snapshot returns the owner-visible balance pair for an account.
func (s *AccountService) Snapshot(ctx context.Context, identityID, accountID uuid.UUID) (models.BalanceSnapshot, error) {
	if err := s.guard.Authorize(identityID, accountID); err != nil {
		return models.BalanceSnapshot{}, err
	}
	return s.ledger.Snapshot(accountID)
}

// GetAccount returns an account the identity owns.
func (s *AccountService) GetAccount(ctx context.Context, identityID, accountID uuid.UUID) (models.Account, error) {
	if err := s.guard.Authorize(identityID, accountID); err != nil {
		return models.Account{}, err
	}
	return s.ledger.Account(accountID)
}

// ListAccounts returns every account owned by the identity.
func (s *AccountService) ListAccounts(ctx context.Context, identityID uuid.UUID) ([]models.Account, error) {
	if _, err := s.identities.GetIdentity(ctx, identityID); err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return s.ledger.AccountsForOwner(identityID), nil
}
