package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"transfer-sniper/internal/alerting"
	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/scheduler"
	"transfer-sniper/internal/service"
	"transfer-sniper/internal/settings"
	"transfer-sniper/internal/sniper"
	"transfer-sniper/internal/storage"
)

// SimulateOptions configure an offline engine run.
type SimulateOptions struct {
	// Steps is the number of timer firings to drive.
	Steps int
	Seed  uint64
	// MaxBuy and SellPrice shape the simulated filter.
	MaxBuy    int
	SellPrice int
	// HitRate is the chance a search returns a listing.
	HitRate float64
	// WinRate is the chance a bid succeeds.
	WinRate float64
	// CaptchaAt makes the n-th search report a captcha. Zero disables it.
	CaptchaAt int
	DryRun    bool
}

// SimulationResult summarises a simulated run.
type SimulationResult struct {
	Steps     int
	Elapsed   time.Duration
	Snapshot  sniper.Snapshot
	Purchases []sniper.Purchase
	Summary   storage.PurchaseSummary
	Relists   int
}

// Simulate runs the engine against an in-memory market on a virtual clock and prints the events.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (SimulationResult, error) {
	if opts.Steps <= 0 {
		return SimulationResult{}, errors.New("steps must be greater than zero")
	}
	if opts.MaxBuy <= 0 {
		opts.MaxBuy = 10_000
	}

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := scheduler.NewManual(start)
	gw := newSimGateway(opts)
	rec := &simRecorder{}

	st := settings.Defaults()
	st.Search.DryRun = opts.DryRun
	crit := market.Criteria{market.KeyMaxBuy: opts.MaxBuy}
	if opts.SellPrice > 0 {
		crit.Set(market.KeySellPrice, opts.SellPrice)
	}
	filter := filters.Filter{
		ID:       "simulated",
		Name:     filters.Name(crit, filters.BaselineCriteria(), nil),
		Bucket:   market.BucketPlayer,
		Criteria: crit,
	}

	sink := alerting.Multi{
		alerting.NewConsole(a.out(), alerting.ConsoleOptions{Now: clock.Now}),
	}

	engOpts := a.engineOptions()
	engOpts.Settings = st
	engOpts.Filters = staticFilterSource{filter}
	engOpts.Recorder = rec
	engOpts.Clock = clock
	rnd := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	engOpts.IntN = rnd.IntN
	engine := sniper.New(gw, sink, engOpts, a.Logger)

	if !engine.Start(ctx) {
		return SimulationResult{}, errors.New("simulated engine did not start")
	}

	steps := 0
	for ; steps < opts.Steps; steps++ {
		if err := ctx.Err(); err != nil {
			engine.Stop()
			return SimulationResult{}, err
		}
		if _, ok := clock.FireNext(); !ok {
			break
		}
	}
	if engine.State() == sniper.Running {
		engine.Stop()
	}

	purchases := rec.all()
	records := make([]storage.PurchaseRecord, len(purchases))
	for i, p := range purchases {
		records[i] = service.ToRecord(p)
	}
	res := SimulationResult{
		Steps:     steps,
		Elapsed:   clock.Now().Sub(start),
		Snapshot:  engine.Snapshot(),
		Purchases: purchases,
		Summary:   storage.Summarize(records),
		Relists:   gw.relistCount(),
	}

	fmt.Fprintf(a.out(), "\n%d steps over %s of virtual time\n", res.Steps, res.Elapsed)
	fmt.Fprintf(a.out(), "searches=%d wins=%d fails=%d relists=%d\n",
		res.Snapshot.Stats.Searches, res.Snapshot.Stats.Wins, res.Snapshot.Stats.Fails, res.Relists)
	printSummary(a.out(), res.Summary)
	return res, nil
}

type staticFilterSource []filters.Filter

func (s staticFilterSource) Selected() []filters.Filter { return s }

type simRecorder struct {
	mu        sync.Mutex
	purchases []sniper.Purchase
}

func (r *simRecorder) RecordPurchase(_ context.Context, p sniper.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases = append(r.purchases, p)
	return nil
}

func (r *simRecorder) all() []sniper.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sniper.Purchase(nil), r.purchases...)
}

// simGateway is a deterministic in-memory market.
type simGateway struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	opts     SimulateOptions
	searches int
	nextID   int64
	relists  int
}

func newSimGateway(opts SimulateOptions) *simGateway {
	return &simGateway{
		rnd:    rand.New(rand.NewPCG(opts.Seed, opts.Seed+1)),
		opts:   opts,
		nextID: 100_000,
	}
}

func (g *simGateway) Search(_ context.Context, req market.SearchRequest) (market.SearchResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches++
	if g.opts.CaptchaAt > 0 && g.searches == g.opts.CaptchaAt {
		return market.SearchResponse{Success: false, Status: 458, StatusText: market.CaptchaRequired}, nil
	}

	resp := market.SearchResponse{Success: true, Status: 200}
	if g.rnd.Float64() >= g.opts.HitRate {
		return resp, nil
	}
	limit := req.Criteria.Int(market.KeyMaxBuy)
	if limit <= 0 {
		limit = g.opts.MaxBuy
	}
	g.nextID++
	resp.Items = append(resp.Items, market.Item{
		TradeID:     g.nextID,
		BuyNowPrice: max(200, limit-g.rnd.IntN(max(1, limit/4))),
		TradeState:  "active",
		Expires:     60 + g.rnd.IntN(3500),
		ItemID:      g.nextID * 7,
		Name:        "Simulated Player",
		Rating:      75 + g.rnd.IntN(15),
	})
	return resp, nil
}

func (g *simGateway) Bid(_ context.Context, _ market.Item, _ int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64() < g.opts.WinRate, nil
}

func (g *simGateway) Relist(context.Context, market.Item, int, int, time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relists++
	return nil
}

func (g *simGateway) TransferPileFull(context.Context) (bool, error) {
	return false, nil
}

func (g *simGateway) relistCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.relists
}

var _ market.Gateway = (*simGateway)(nil)
var _ sniper.Recorder = (*simRecorder)(nil)
