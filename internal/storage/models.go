package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer-sniper/internal/price"
)

// Purchase outcomes stored in the outcome column.
const (
	OutcomeBought = "bought"
	OutcomeFailed = "failed"
	OutcomeDryRun = "dry_run"
)

// PurchaseRecord is one persisted buy step.
type PurchaseRecord struct {
	ID             int64
	RunID          string
	FilterID       string
	FilterName     string
	TradeID        int64
	ItemID         int64
	ItemName       string
	Rating         int
	BuyPrice       int
	SellPrice      int
	ExpectedProfit decimal.Decimal
	Outcome        string
	AttemptedAt    time.Time
	CreatedAt      time.Time
}

// WithExpectedProfit fills ExpectedProfit from the buy and sell prices. Only bought and dry-run
// rows with a sell price carry a profit.
func (p PurchaseRecord) WithExpectedProfit() PurchaseRecord {
	if p.Outcome == OutcomeFailed || p.SellPrice <= 0 {
		p.ExpectedProfit = decimal.Zero
		return p
	}
	p.ExpectedProfit = price.Profit(p.BuyPrice, p.SellPrice)
	return p
}

// PurchaseSummary aggregates outcomes over a window.
type PurchaseSummary struct {
	Bought         int64
	Failed         int64
	DryRun         int64
	Spent          int64
	ExpectedProfit decimal.Decimal
}

// Summarize folds records into a PurchaseSummary.
func Summarize(records []PurchaseRecord) PurchaseSummary {
	sum := PurchaseSummary{ExpectedProfit: decimal.Zero}
	for _, r := range records {
		switch r.Outcome {
		case OutcomeBought:
			sum.Bought++
			sum.Spent += int64(r.BuyPrice)
			sum.ExpectedProfit = sum.ExpectedProfit.Add(r.ExpectedProfit)
		case OutcomeFailed:
			sum.Failed++
		case OutcomeDryRun:
			sum.DryRun++
		}
	}
	return sum
}
