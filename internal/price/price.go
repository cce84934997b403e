// Package price centralises the marketplace price grid and profit arithmetic.
package price

import (
	"github.com/shopspring/decimal"
)

// TaxRate is the share of the sale price withheld by the marketplace.
var TaxRate = decimal.RequireFromString("0.05")

var hundred = decimal.NewFromInt(100)

// Step returns the bidding increment that applies at p.
func Step(p int) int {
	switch {
	case p <= 1000:
		return 50
	case p <= 10000:
		return 100
	case p <= 50000:
		return 250
	case p <= 100000:
		return 500
	default:
		return 1000
	}
}

// Valid rounds p down onto the price grid.
func Valid(p int) int {
	if p <= 0 {
		return 0
	}
	step := Step(p)
	return p / step * step
}

// NextLower returns the price one grid step below p, floored at zero.
func NextLower(p int) int {
	return max(0, p-Step(p))
}

// AfterTax is what the seller receives for a sale at p.
func AfterTax(p int) decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Mul(decimal.NewFromInt(1).Sub(TaxRate))
}

// Profit is the after-tax margin of buying at buy and selling at sell, floored to whole coins.
func Profit(buy, sell int) decimal.Decimal {
	if buy <= 0 || sell <= 0 {
		return decimal.Zero
	}
	return AfterTax(sell).Sub(decimal.NewFromInt(int64(buy))).Floor()
}

// ProfitPercent expresses Profit relative to the buy price.
func ProfitPercent(buy, sell int) decimal.Decimal {
	if buy <= 0 || sell <= 0 {
		return decimal.Zero
	}
	return Profit(buy, sell).Div(decimal.NewFromInt(int64(buy))).Mul(hundred)
}

// SuggestSellPrice returns the lowest grid price that clears target percent profit after tax.
func SuggestSellPrice(buy int, targetPct decimal.Decimal) int {
	if buy <= 0 {
		return 0
	}
	b := decimal.NewFromInt(int64(buy))
	gross := b.Add(b.Mul(targetPct).Div(hundred)).Div(decimal.NewFromInt(1).Sub(TaxRate)).Ceil()
	return Valid(int(gross.IntPart()))
}
