package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := NewMoney(10_500_000, "USD") // 10.50 USD
	d := m.ToDecimal()
	assert.Equal(t, "10.5", d.String())
}

func TestFromDecimal(t *testing.T) {
	d := decimal.NewFromFloat(10.50)
	micros := FromDecimal(d)
	assert.Equal(t, int64(10_500_000), micros)
}

func TestParseAmount(t *testing.T) {
	micros, err := ParseAmount("25.00")
	require.NoError(t, err)
	assert.Equal(t, int64(25_000_000), micros)

	micros, err = ParseAmount("0.000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), micros)

	_, err = ParseAmount("not-a-number")
	assert.Error(t, err)

	// Finer than one micro is rejected, not silently truncated.
	_, err = ParseAmount("1.0000009")
	assert.Error(t, err)
	_, err = ParseAmount("0.0000001")
	assert.Error(t, err)
}

func TestMoney_IsPositive(t *testing.T) {
	assert.True(t, NewMoney(1, "USD").IsPositive())
	assert.False(t, NewMoney(0, "USD").IsPositive())
	assert.False(t, NewMoney(-5, "USD").IsPositive())
}

func TestMoney_String(t *testing.T) {
	m := NewMoney(60_000_000, "USD")
	assert.Equal(t, "60.00 USD", m.String())
}
