package service

import (
	"context"
	"fmt"

	"transfer-sniper/internal/sniper"
	"transfer-sniper/internal/storage"
)

// LedgerRecorder writes engine buy steps into the purchase ledger.
type LedgerRecorder struct {
	store storage.PurchaseStore
}

// NewLedgerRecorder wraps store.
func NewLedgerRecorder(store storage.PurchaseStore) *LedgerRecorder {
	return &LedgerRecorder{store: store}
}

// RecordPurchase converts and inserts p.
func (r *LedgerRecorder) RecordPurchase(ctx context.Context, p sniper.Purchase) error {
	if _, err := r.store.InsertPurchase(ctx, ToRecord(p)); err != nil {
		return fmt.Errorf("record purchase of trade %d: %w", p.Item.TradeID, err)
	}
	return nil
}

// ToRecord maps an engine purchase onto a ledger row.
func ToRecord(p sniper.Purchase) storage.PurchaseRecord {
	return storage.PurchaseRecord{
		RunID:       p.RunID,
		FilterID:    p.FilterID,
		FilterName:  p.FilterName,
		TradeID:     p.Item.TradeID,
		ItemID:      p.Item.ItemID,
		ItemName:    p.Item.Name,
		Rating:      p.Item.Rating,
		BuyPrice:    p.Price,
		SellPrice:   p.SellPrice,
		Outcome:     string(p.Outcome),
		AttemptedAt: p.At.UTC(),
	}.WithExpectedProfit()
}

var _ sniper.Recorder = (*LedgerRecorder)(nil)
