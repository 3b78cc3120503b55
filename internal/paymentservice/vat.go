package paymentservice

import (
	"math"

	"github.com/pazpaz/backend/internal/apperr"
)

// VATSplit is the result of decomposing a gross total into base and
// VAT amounts (spec.md §4.6 op 1).
type VATSplit struct {
	Base  float64
	VAT   float64
	Total float64
}

// CalculateVAT splits total per the workspace's VAT registration. When
// registered, base = round2(total / (1 + rate/100)) and vat = total -
// base, so base+vat always reconstructs the original total exactly
// (no independent rounding of vat). Unregistered workspaces charge no
// VAT: base = total.
func CalculateVAT(total float64, vatRegistered bool, vatRatePercent float64) (VATSplit, error) {
	if total <= 0 {
		return VATSplit{}, apperr.New(apperr.KindInvalidAmount, "payment total must be positive")
	}
	if !vatRegistered {
		return VATSplit{Base: total, VAT: 0, Total: total}, nil
	}
	base := roundHalfUp2(total / (1 + vatRatePercent/100))
	vat := total - base
	return VATSplit{Base: base, VAT: roundHalfUp2(vat), Total: total}, nil
}

// roundHalfUp2 rounds to 2 decimal places, ties away from zero, the
// conventional currency-rounding rule spec.md §4.6 names explicitly
// (Go's math.Round already rounds half away from zero for positive
// inputs, which is what half-up means for non-negative currency amounts).
func roundHalfUp2(v float64) float64 {
	return math.Round(v*100) / 100
}
