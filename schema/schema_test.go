package schema

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToDecimal128TruncatesLongCoefficients(t *testing.T) {
	// A raw 18-decimal quantity times a float-precision price produces
	// far more than 34 significant digits.
	quantity := decimal.RequireFromString("12345678901234567890123").Shift(-18)
	point := quantity.Mul(decimal.NewFromFloat(0.12345678901234567))
	require.Greater(t, point.NumDigits(), 34)

	v := ToDecimal128(point)
	require.NotEqual(t, "NaN", v.String())

	got := FromDecimal128(v)
	require.False(t, got.IsZero())
	diff := point.Sub(got).Abs()
	require.True(t, diff.LessThan(point.Shift(-30)), "got %s from %s", got, point)

	// Values within the 34-digit width convert exactly.
	exact := decimal.RequireFromString("1.000000000000000001")
	require.True(t, FromDecimal128(ToDecimal128(exact)).Equal(exact))
}
