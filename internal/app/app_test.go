package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"transfer-sniper/internal/config"
	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/storage"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		App:   config.AppConfig{Name: "sniper"},
		Local: config.LocalConfig{Path: filepath.Join(t.TempDir(), "sniper.db")},
	}
	var buf bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &buf
	return a, &buf
}

func TestSimulateStopsOnCaptcha(t *testing.T) {
	a, out := newTestApp(t)

	res, err := a.Simulate(context.Background(), SimulateOptions{
		Steps:     50,
		Seed:      7,
		MaxBuy:    10_000,
		SellPrice: 12_000,
		HitRate:   1,
		WinRate:   1,
		CaptchaAt: 4,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if res.Snapshot.State.String() != "stopped" {
		t.Fatalf("expected stopped engine, got %s", res.Snapshot.State)
	}
	if res.Snapshot.Stats.Searches != 3 || res.Snapshot.Stats.Wins != 3 {
		t.Fatalf("unexpected stats %+v", res.Snapshot.Stats)
	}
	if res.Summary.Bought != 3 || res.Relists != 3 {
		t.Fatalf("expected three bought and relisted, got %+v relists=%d", res.Summary, res.Relists)
	}
	if !res.Summary.ExpectedProfit.GreaterThan(decimal.Zero) {
		t.Fatalf("expected positive profit, got %s", res.Summary.ExpectedProfit)
	}
	text := out.String()
	for _, want := range []string{"Sniper started!", "CAPTCHA detected - stopping sniper", "Item listed for 12,000", "bought=3"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestSimulateDryRunNeverBids(t *testing.T) {
	a, _ := newTestApp(t)

	res, err := a.Simulate(context.Background(), SimulateOptions{
		Steps:   5,
		Seed:    1,
		HitRate: 1,
		WinRate: 1,
		DryRun:  true,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Snapshot.Stats.Wins != 0 || res.Summary.Bought != 0 {
		t.Fatalf("dry run must not buy, got %+v", res.Summary)
	}
	if res.Summary.DryRun == 0 {
		t.Fatal("expected dry-run purchases to be recorded")
	}
}

func TestSimulateRequiresSteps(t *testing.T) {
	a, _ := newTestApp(t)
	if _, err := a.Simulate(context.Background(), SimulateOptions{}); err == nil {
		t.Fatal("expected error for zero steps")
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{
		"safety.delayBetweenSearches.min=3",
		"safety.delayBetweenSearches.max = 8",
		"search.dryRun=true",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	safety := got["safety"].(map[string]any)
	delay := safety["delayBetweenSearches"].(map[string]any)
	if delay["min"] != "3" || delay["max"] != "8" {
		t.Fatalf("unexpected delay map %v", delay)
	}

	if _, err := parseAssignments([]string{"novalue"}); err == nil {
		t.Fatal("expected error for missing '='")
	}
	if _, err := parseAssignments([]string{"search=1", "search.dryRun=true"}); err == nil {
		t.Fatal("expected conflict error")
	}
}

func TestSetSettingsPersists(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	if err := a.SetSettings(ctx, []string{"safety.delayBetweenSearches.min=3", "safety.delayBetweenSearches.max=9", "search.filterRotation=per-cycle"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	out.Reset()
	if err := a.ShowSettings(ctx); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), `"filterRotation": "per-cycle"`) {
		t.Fatalf("rotation not persisted:\n%s", out.String())
	}

	if err := a.SetSettings(ctx, []string{"safety.delayBetweenSearches.min=20"}); err == nil {
		t.Fatal("inverted range should be rejected")
	}
	if err := a.ResetSettings(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
}

func TestFilterSelectionCommands(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	var id string
	err := a.withFilters(ctx, func(store *filters.Store) error {
		var err error
		id, err = store.Save(ctx, market.BucketPlayer, market.Criteria{"minBuy": 1000}, nil)
		return err
	})
	if err != nil {
		t.Fatalf("seed filter: %v", err)
	}

	if err := a.SelectFilters(ctx, FilterSelection{IDs: []string{id}}); err != nil {
		t.Fatalf("select: %v", err)
	}
	out.Reset()
	if err := a.ListFilters(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "*") || !strings.Contains(out.String(), id) {
		t.Fatalf("selected filter not marked:\n%s", out.String())
	}

	if err := a.SelectFilters(ctx, FilterSelection{IDs: []string{"missing"}}); err == nil {
		t.Fatal("selecting an unknown id should fail")
	}

	exportPath := filepath.Join(t.TempDir(), "filters.yaml")
	if err := a.ExportFilters(ctx, exportPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := a.ImportFilters(ctx, exportPath, nil); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := a.withFilters(ctx, func(store *filters.Store) error {
		if n := len(store.List()); n != 2 {
			t.Fatalf("expected 2 filters after import, got %d", n)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := a.ClearFilters(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

type fakeView struct {
	current market.Criteria
	ref     *filters.ReferenceItem
}

func (v fakeView) CurrentCriteria(context.Context) (market.Criteria, error) { return v.current, nil }
func (v fakeView) DefaultCriteria(context.Context) (market.Criteria, error) {
	return filters.BaselineCriteria(), nil
}
func (v fakeView) CurrentReference(context.Context) (*filters.ReferenceItem, error) {
	return v.ref, nil
}

func TestCaptureFilterSaveAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := filters.NewStore(nil, filters.Options{}, zerolog.Nop())

	view := fakeView{
		current: market.Criteria{"minBuy": 1000},
		ref:     &filters.ReferenceItem{FirstName: "Kylian", LastName: "Mbappe", Rating: 91},
	}
	id, err := captureFilter(ctx, store, view, market.BucketPlayer, "")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	f, ok := store.Get(id)
	if !ok || f.Reference.Label() != "Kylian Mbappe (91)" {
		t.Fatalf("unexpected saved filter %+v", f)
	}

	view.current = market.Criteria{"minBuy": 2000}
	view.ref = nil
	if _, err := captureFilter(ctx, store, view, "", id); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := store.Get(id)
	if updated.Criteria.Int("minBuy") != 2000 || updated.Reference != nil || !updated.CreatedAt.Equal(f.CreatedAt) {
		t.Fatalf("unexpected updated filter %+v", updated)
	}

	if _, err := captureFilter(ctx, store, fakeView{}, market.BucketPlayer, ""); err == nil {
		t.Fatal("empty criteria should be rejected")
	}
}

func TestDownsamplePurchases(t *testing.T) {
	records := make([]storage.PurchaseRecord, 10)
	for i := range records {
		records[i].TradeID = int64(i)
	}
	got := downsamplePurchases(records, 4)
	if len(got) != 4 || got[0].TradeID != 0 || got[3].TradeID != 9 {
		t.Fatalf("unexpected downsample %+v", got)
	}
	if len(downsamplePurchases(records, 0)) != 10 {
		t.Fatal("zero max keeps everything")
	}
}

func TestWritePurchasesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "purchases.csv")
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	records := []storage.PurchaseRecord{
		storage.PurchaseRecord{RunID: "r", TradeID: 42, BuyPrice: 6000, SellPrice: 10000, Outcome: storage.OutcomeBought, AttemptedAt: at}.WithExpectedProfit(),
	}
	if err := writePurchasesCSV(path, records); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d", len(rows))
	}
	if rows[1][0] != "2026-02-01T10:00:00Z" || rows[1][10] != "3500" || rows[1][11] != "bought" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}

func TestFilterOutcome(t *testing.T) {
	records := []storage.PurchaseRecord{
		{TradeID: 1, Outcome: storage.OutcomeBought},
		{TradeID: 2, Outcome: storage.OutcomeFailed},
		{TradeID: 3, Outcome: storage.OutcomeBought},
	}
	got := filterOutcome(records, storage.OutcomeBought)
	if len(got) != 2 || got[0].TradeID != 1 || got[1].TradeID != 3 {
		t.Fatalf("unexpected filtered rows %+v", got)
	}
	if len(filterOutcome(records, "")) != 3 {
		t.Fatal("empty outcome keeps everything")
	}
	if records[1].TradeID != 2 {
		t.Fatal("filtering must not modify the input")
	}

	if _, err := ParseOutcome("sold"); err == nil {
		t.Fatal("expected unknown outcome error")
	}
	if got, err := ParseOutcome(storage.OutcomeDryRun); err != nil || got != storage.OutcomeDryRun {
		t.Fatalf("unexpected parse result %q, %v", got, err)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, storage.PurchaseSummary{Bought: 2, Spent: 12000, ExpectedProfit: decimal.NewFromInt(3500)})
	if got := buf.String(); got != "bought=2 dry_run=0 failed=0 spent=12,000 expected_profit=3500\n" {
		t.Fatalf("unexpected summary %q", got)
	}
}
