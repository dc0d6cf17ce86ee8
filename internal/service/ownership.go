package service

import (
	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/domain"
)

// OwnerResolver looks up the identity owning an account. The ledger provides
// this; the guard itself never touches balances.
type OwnerResolver interface {
	Owner(accountID uuid.UUID) (uuid.UUID, error)
}

// OwnershipGuard is a pure authorization predicate: does identity X control
// account Y. No side effects.
type OwnershipGuard struct {
	resolver OwnerResolver
}

func NewOwnershipGuard(resolver OwnerResolver) *OwnershipGuard {
	return &OwnershipGuard{resolver: resolver}
}

// Owns reports whether identityID owns accountID. A missing account
// surfaces as domain.ErrAccountNotFound.
func (g *OwnershipGuard) Owns(identityID, accountID uuid.UUID) (bool, error) {
	owner, err := g.resolver.Owner(accountID)
	if err != nil {
		return false, err
	}
	return owner == identityID, nil
}

// Authorize is Owns folded into the error taxonomy: nil when identityID owns
// the account, ErrUnauthorized when it does not.
func (g *OwnershipGuard) Authorize(identityID, accountID uuid.UUID) error {
	owns, err := g.Owns(identityID, accountID)
	if err != nil {
		return err
	}
	if !owns {
		return domain.ErrUnauthorized
	}
	return nil
}
