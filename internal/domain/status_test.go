package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferStatus_Transitions(t *testing.T) {
	assert.True(t, TransferPending.CanTransitionTo(TransferAccepted))
	assert.True(t, TransferPending.CanTransitionTo(TransferRejected))

	// Terminal states admit no further transitions, not even self-loops.
	for _, terminal := range []TransferStatus{TransferAccepted, TransferRejected} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransitionTo(TransferPending))
		assert.False(t, terminal.CanTransitionTo(TransferAccepted))
		assert.False(t, terminal.CanTransitionTo(TransferRejected))
	}

	assert.False(t, TransferPending.Terminal())
	assert.False(t, TransferPending.CanTransitionTo(TransferPending))
}

func TestParseTransferStatus(t *testing.T) {
	st, err := ParseTransferStatus("PENDING")
	require.NoError(t, err)
	assert.Equal(t, TransferPending, st)

	_, err = ParseTransferStatus("SETTLED")
	assert.Error(t, err)
}
