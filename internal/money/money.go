// Package money holds the fixed-point helpers shared by settlement and credit.
// All amounts are shopspring decimals carried at two decimal places.
package money

import "github.com/shopspring/decimal"

// Scale is the number of decimal places kept for monetary amounts.
const Scale = 2

var (
	// Cent is the smallest representable amount.
	Cent = decimal.New(1, -Scale)
	// TaxRate is the single tax rate applied to every sale.
	TaxRate = decimal.RequireFromString("0.18")
)

// Round rounds half away from zero to two decimals. Amounts are never negative
// here, so this is round-half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// HasCents reports whether d needs no more precision than two decimals.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(Scale))
}

// Split returns round_half_up(total / parts, 2).
func Split(total decimal.Decimal, parts int) decimal.Decimal {
	if parts <= 0 {
		return decimal.Zero
	}
	return Round(total.Div(decimal.NewFromInt(int64(parts))))
}

// Min returns the smallest of the given amounts.
func Min(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	return decimal.Min(first, rest...)
}

// Tax computes round_half_up(base * TaxRate, 2).
func Tax(base decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(TaxRate))
}
