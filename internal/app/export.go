package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"transfer-sniper/internal/storage"
)

// Export renders the purchase ledger as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := requireLedger(store, "export"); err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListPurchasesBetween(ctx, from, to, 0)
	if err != nil {
		return err
	}
	records = filterOutcome(records, opts.Outcome)
	if len(records) == 0 {
		a.Logger.Info().Msg("no purchases found for export window")
		return nil
	}

	downsampled := downsamplePurchases(records, opts.MaxPoints)
	summary := storage.Summarize(records)
	a.Logger.Info().
		Int("total", len(records)).
		Int("exported", len(downsampled)).
		Int64("bought", summary.Bought).
		Str("expected_profit", formatDecimal(summary.ExpectedProfit, 0)).
		Msg("exporting purchases")

	if opts.CSVPath != "" {
		if err := writePurchasesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePurchasesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePurchases(records []storage.PurchaseRecord, max int) []storage.PurchaseRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[:1]
	}

	result := make([]storage.PurchaseRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writePurchasesCSV(path string, records []storage.PurchaseRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"attempted_at", "run_id", "filter_id", "filter_name", "trade_id", "item_id", "item_name", "rating", "buy_price", "sell_price", "expected_profit", "outcome"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		record := []string{
			r.AttemptedAt.UTC().Format(time.RFC3339),
			r.RunID,
			r.FilterID,
			r.FilterName,
			strconv.FormatInt(r.TradeID, 10),
			strconv.FormatInt(r.ItemID, 10),
			r.ItemName,
			strconv.Itoa(r.Rating),
			strconv.Itoa(r.BuyPrice),
			strconv.Itoa(r.SellPrice),
			r.ExpectedProfit.String(),
			r.Outcome,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePurchasesPNG(path string, records []storage.PurchaseRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(records))
	buy := make([]float64, 0, len(records))
	profit := make([]float64, 0, len(records))
	cumulative := 0.0

	for _, r := range records {
		if r.Outcome == storage.OutcomeFailed {
			continue
		}
		cumulative += r.ExpectedProfit.InexactFloat64()
		x = append(x, r.AttemptedAt)
		buy = append(buy, float64(r.BuyPrice))
		profit = append(profit, cumulative)
	}
	if len(x) < 2 {
		return errors.New("need at least two successful purchases to chart")
	}

	coinFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Buy price (coins)",
			ValueFormatter: coinFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cumulative expected profit (coins)",
			ValueFormatter: coinFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Buy price",
				XValues: x,
				YValues: buy,
			},
			chart.TimeSeries{
				Name:    "Cumulative profit",
				XValues: x,
				YValues: profit,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
