package paymentservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateVATRegisteredWorkspace(t *testing.T) {
	split, err := CalculateVAT(117.00, true, 17.0)
	require.NoError(t, err)
	assert.InDelta(t, 100.00, split.Base, 0.001)
	assert.InDelta(t, 17.00, split.VAT, 0.001)
	assert.InDelta(t, 117.00, split.Base+split.VAT, 0.001)
}

func TestCalculateVATUnregisteredWorkspace(t *testing.T) {
	split, err := CalculateVAT(100.00, false, 17.0)
	require.NoError(t, err)
	assert.Equal(t, 100.00, split.Base)
	assert.Equal(t, 0.0, split.VAT)
}

func TestCalculateVATRejectsNonPositiveTotal(t *testing.T) {
	_, err := CalculateVAT(0, true, 17.0)
	require.Error(t, err)
	_, err = CalculateVAT(-5, true, 17.0)
	require.Error(t, err)
}

func TestCalculateVATIsFixedPoint(t *testing.T) {
	split, err := CalculateVAT(150.00, true, 17.0)
	require.NoError(t, err)
	again, err := CalculateVAT(split.Base+split.VAT, true, 17.0)
	require.NoError(t, err)
	assert.InDelta(t, split.Base, again.Base, 0.001)
	assert.InDelta(t, split.VAT, again.VAT, 0.001)
}
