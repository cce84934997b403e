package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"transfer-sniper/internal/storage"
)

// Show prints recent ledger rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := requireLedger(store, "show purchases"); err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentPurchases(ctx, opts.Limit)
	if err != nil {
		return err
	}
	records = filterOutcome(records, opts.Outcome)
	if len(records) == 0 {
		fmt.Fprintln(a.out(), "no purchases found")
		return nil
	}

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tOutcome\tFilter\tItem\tTrade\tBuy\tSell\tProfit")

	for _, r := range records {
		sell := "-"
		if r.SellPrice > 0 {
			sell = humanize.Comma(int64(r.SellPrice))
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.AttemptedAt.UTC().Format(time.RFC3339),
			r.Outcome,
			sanitizeInline(r.FilterName),
			sanitizeInline(itemLabel(r.ItemName, r.Rating)),
			r.TradeID,
			humanize.Comma(int64(r.BuyPrice)),
			sell,
			formatDecimal(r.ExpectedProfit, 0),
		)
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	if opts.Summary {
		printSummary(a.out(), storage.Summarize(records))
	}
	return nil
}

func printSummary(w io.Writer, sum storage.PurchaseSummary) {
	fmt.Fprintf(w, "bought=%d dry_run=%d failed=%d spent=%s expected_profit=%s\n",
		sum.Bought, sum.DryRun, sum.Failed, humanize.Comma(sum.Spent), formatDecimal(sum.ExpectedProfit, 0))
}

// filterOutcome keeps rows with the given outcome; an empty outcome keeps all.
func filterOutcome(records []storage.PurchaseRecord, outcome string) []storage.PurchaseRecord {
	if outcome == "" {
		return records
	}
	kept := records[:0:0]
	for _, r := range records {
		if r.Outcome == outcome {
			kept = append(kept, r)
		}
	}
	return kept
}

// ParseOutcome validates a ledger outcome name.
func ParseOutcome(s string) (string, error) {
	switch s {
	case "", storage.OutcomeBought, storage.OutcomeFailed, storage.OutcomeDryRun:
		return s, nil
	}
	return "", fmt.Errorf("unknown outcome %q (want bought, failed or dry_run)", s)
}

func itemLabel(name string, rating int) string {
	if name == "" {
		name = "Item"
	}
	if rating > 0 {
		return fmt.Sprintf("%s (%d)", name, rating)
	}
	return name
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
