package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/models"
)

// TransferStore is the durable record of transfers. Both the Postgres
// repository and the in-memory store satisfy it.
type TransferStore interface {
	CreateTransfer(ctx context.Context, transfer *models.Transfer) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	FinalizeTransfer(ctx context.Context, id uuid.UUID, status domain.TransferStatus, decidedAt time.Time) error
	ListTransfersByAccounts(ctx context.Context, accountIDs []uuid.UUID, limit, offset int) ([]models.Transfer, error)
}

// IdentityStore is the minimal identity access the service layer needs.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetIdentityByUsername(ctx context.Context, username string) (*models.Identity, error)
}
