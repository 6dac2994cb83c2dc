package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CentsFromFloat converts a provider-reported decimal amount into whole
// cents, rounding half away from zero.
func CentsFromFloat(v float64) int64 {
	return decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
}

// CentsFromString parses a money string ("1234.56") into cents. Amounts with
// more than two decimal places are rejected rather than silently rounded.
func CentsFromString(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	shifted := d.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	return shifted.IntPart(), nil
}

// FormatCents renders cents as a plain decimal string ("1234.56").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// SplitInstallments divides totalCents into count per-installment amounts.
// Each installment gets the whole-cent quotient and the remainder is spread
// one cent at a time over the final installments, so the amounts never differ
// by more than one cent, always sum exactly to totalCents, and stay positive
// whenever totalCents >= count (callers validate that bound).
func SplitInstallments(totalCents int64, count int32) []int64 {
	n := int64(count)
	base := totalCents / n
	rem := totalCents % n

	out := make([]int64, count)
	for i := range out {
		out[i] = base
		if int64(i) >= n-rem {
			out[i]++
		}
	}
	return out
}
