package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpay/ledgercore/internal/domain"
)

func TestReconciliationRunOnBalancedLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Move funds around through the full lifecycle first.
	transfer, err := f.coordinator.Propose(ctx, f.alice, f.aliceAcc, f.bobAcc, 25_000_000, "")
	require.NoError(t, err)
	_, err = f.coordinator.Decide(ctx, f.bob, transfer.ID, domain.OutcomeAccept)
	require.NoError(t, err)

	svc := NewReconciliationService(f.ledger)
	assert.NoError(t, svc.Run(ctx))

	totals := f.ledger.AuditTotals()
	assert.Equal(t, totals["USD"].DepositedMicros, totals["USD"].CommittedMicros)
}
