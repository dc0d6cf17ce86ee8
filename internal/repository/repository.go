// Package repository provides durable stores for the ledger core. The
// Postgres implementation is the production engine; MemoryStore is the
// reference implementation of the same contracts.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/models"
)

// Repository is the Postgres-backed store.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	query := `INSERT INTO identities (id, username, display_name, role, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`
	err := r.db.QueryRow(ctx, query, identity.ID, identity.Username, identity.DisplayName, identity.Role).Scan(&identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

func (r *Repository) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	identity := &models.Identity{}
	query := `SELECT id, username, display_name, role, created_at FROM identities WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&identity.ID, &identity.Username, &identity.DisplayName, &identity.Role, &identity.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

func (r *Repository) GetIdentityByUsername(ctx context.Context, username string) (*models.Identity, error) {
	identity := &models.Identity{}
	query := `SELECT id, username, display_name, role, created_at FROM identities WHERE username = $1`
	err := r.db.QueryRow(ctx, query, username).Scan(&identity.ID, &identity.Username, &identity.DisplayName, &identity.Role, &identity.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity by username: %w", err)
	}
	return identity, nil
}

// LoadAccounts reads the full account table for ledger startup.
func (r *Repository) LoadAccounts(ctx context.Context) ([]models.Account, error) {
	query := `SELECT id, owner_id, currency, available_micros, escrowed_micros, created_at, updated_at FROM accounts`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Currency, &a.AvailableMicros, &a.EscrowedMicros, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *Repository) InsertAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (id, owner_id, currency, available_micros, escrowed_micros, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query, account.ID, account.OwnerID, account.Currency,
		account.AvailableMicros, account.EscrowedMicros, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *Repository) UpdateBalances(ctx context.Context, id uuid.UUID, availableMicros, escrowedMicros int64, updatedAt time.Time) error {
	query := `UPDATE accounts SET available_micros = $1, escrowed_micros = $2, updated_at = $3 WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, availableMicros, escrowedMicros, updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update balances affected %d rows", tag.RowsAffected())
	}
	return nil
}

// UpdateBalancesPair writes two account rows inside one transaction. A settle
// moves funds across accounts; committing only one side would destroy or
// mint money in the durable copy.
func (r *Repository) UpdateBalancesPair(ctx context.Context, first, second models.BalanceUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE accounts SET available_micros = $1, escrowed_micros = $2, updated_at = $3 WHERE id = $4`
	for _, u := range []models.BalanceUpdate{first, second} {
		tag, err := tx.Exec(ctx, query, u.AvailableMicros, u.EscrowedMicros, u.UpdatedAt, u.AccountID)
		if err != nil {
			return fmt.Errorf("failed to update balances: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("update balances affected %d rows", tag.RowsAffected())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit balance pair: %w", err)
	}
	return nil
}

func (r *Repository) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	query := `INSERT INTO transfers (id, sender_account_id, receiver_account_id, amount_micros, currency, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query, transfer.ID, transfer.SenderAccountID, transfer.ReceiverAccountID,
		transfer.AmountMicros, transfer.Currency, transfer.Description, transfer.Status, transfer.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

func (r *Repository) GetTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	t := &models.Transfer{}
	query := `SELECT id, sender_account_id, receiver_account_id, amount_micros, currency, description, status, created_at, decided_at
		FROM transfers WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.SenderAccountID, &t.ReceiverAccountID,
		&t.AmountMicros, &t.Currency, &t.Description, &t.Status, &t.CreatedAt, &t.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// FinalizeTransfer records the terminal status. The WHERE clause keeps the
// write idempotent at the storage level: a transfer already finalized is
// never overwritten.
func (r *Repository) FinalizeTransfer(ctx context.Context, id uuid.UUID, status domain.TransferStatus, decidedAt time.Time) error {
	query := `UPDATE transfers SET status = $1, decided_at = $2 WHERE id = $3 AND status = $4`
	tag, err := r.db.Exec(ctx, query, status, decidedAt, id, domain.TransferPending)
	if err != nil {
		return fmt.Errorf("failed to finalize transfer: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrAlreadyFinalized
	}
	return nil
}

func (r *Repository) ListTransfersByAccounts(ctx context.Context, accountIDs []uuid.UUID, limit, offset int) ([]models.Transfer, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	query := `SELECT id, sender_account_id, receiver_account_id, amount_micros, currency, description, status, created_at, decided_at
		FROM transfers
		WHERE sender_account_id = ANY($1) OR receiver_account_id = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, accountIDs, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.ID, &t.SenderAccountID, &t.ReceiverAccountID, &t.AmountMicros,
			&t.Currency, &t.Description, &t.Status, &t.CreatedAt, &t.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *Repository) InsertNotification(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (id, identity_id, transfer_id, kind, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transfer_id, kind, identity_id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, n.ID, n.IdentityID, n.TransferID, n.Kind, n.Title, n.Body, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *Repository) ListNotifications(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	query := `SELECT id, identity_id, transfer_id, kind, title, body, read, created_at
		FROM notifications WHERE identity_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, identityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.IdentityID, &n.TransferID, &n.Kind, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *Repository) MarkNotificationRead(ctx context.Context, identityID, notificationID uuid.UUID) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1 AND identity_id = $2`
	tag, err := r.db.Exec(ctx, query, notificationID, identityID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("notification %s not found for identity %s", notificationID, identityID)
	}
	return nil
}
