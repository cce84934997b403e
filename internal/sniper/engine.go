// Package sniper implements the search-and-buy polling engine.
package sniper

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transfer-sniper/internal/alerting"
	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/price"
	"transfer-sniper/internal/scheduler"
	"transfer-sniper/internal/settings"
)

// ErrNoCriteria means a run could not start because there was nothing to search with.
var ErrNoCriteria = errors.New("sniper: no search criteria")

// State is the engine run state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FilterSource yields the filters selected for a run.
type FilterSource interface {
	Selected() []filters.Filter
}

// Outcome of one buy step.
type Outcome string

const (
	OutcomeBought Outcome = "bought"
	OutcomeFailed Outcome = "failed"
	OutcomeDryRun Outcome = "dry_run"
)

// Purchase describes one buy step for a Recorder.
type Purchase struct {
	RunID      string
	FilterID   string
	FilterName string
	Item       market.Item
	Price      int
	SellPrice  int
	Outcome    Outcome
	At         time.Time
}

// Recorder persists buy-step outcomes.
type Recorder interface {
	RecordPurchase(ctx context.Context, p Purchase) error
}

// Stats are cumulative across runs.
type Stats struct {
	Searches int64 `json:"searches"`
	Wins     int64 `json:"wins"`
	Fails    int64 `json:"fails"`
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	State               State         `json:"state"`
	RunID               string        `json:"runId,omitempty"`
	StartedAt           time.Time     `json:"startedAt,omitempty"`
	Filters             int           `json:"filters"`
	SearchCounter       int           `json:"searchCounter"`
	CycleCounter        int           `json:"cycleCounter"`
	CycleTarget         int           `json:"cycleTarget"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	SeenTrades          int           `json:"seenTrades"`
	NextDelay           time.Duration `json:"nextDelay"`
	Stats               Stats         `json:"stats"`
}

// Options configure the engine. Zero values take the defaults noted per field.
type Options struct {
	// FailureThreshold is the consecutive transient failure count that stops a run. Default 3.
	FailureThreshold int
	// SafeguardThreshold is the largest result page acted upon. Default 5.
	SafeguardThreshold int
	// MaxBid is the range the request-scoped maxBid is drawn from. Default 300,000 to 800,000.
	MaxBid settings.Range
	// MaxBidStep rounds the drawn maxBid. Default 1,000.
	MaxBidStep int
	// RelistDelay precedes the relist call after a win. Default 1s.
	RelistDelay time.Duration
	// RelistDuration is the listing duration. Default 1h.
	RelistDuration time.Duration
	Ladder         LadderOptions
	// RequestTimeout bounds each gateway call. Zero means no timeout.
	RequestTimeout time.Duration

	Settings settings.Settings
	Filters  FilterSource
	View     market.ViewState
	Recorder Recorder
	Clock    scheduler.Clock
	// IntN returns a uniform value in [0, n). Defaults to math/rand/v2.
	IntN     func(n int) int
	NewRunID func() string
}

func (o *Options) applyDefaults() {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.SafeguardThreshold <= 0 {
		o.SafeguardThreshold = 5
	}
	if o.MaxBid.Max <= 0 {
		o.MaxBid = settings.Range{Min: 300_000, Max: 800_000}
	}
	if o.MaxBidStep <= 0 {
		o.MaxBidStep = 1000
	}
	if o.RelistDelay <= 0 {
		o.RelistDelay = time.Second
	}
	if o.RelistDuration <= 0 {
		o.RelistDuration = time.Hour
	}
	if o.Ladder.BidStart <= 0 {
		o.Ladder.BidStart = 150
	}
	if o.Ladder.BuyStart <= 0 {
		o.Ladder.BuyStart = 200
	}
	if o.Ladder.DefaultCap <= 0 {
		o.Ladder.DefaultCap = 300
	}
	if o.Clock == nil {
		o.Clock = scheduler.Real{}
	}
	if o.IntN == nil {
		o.IntN = rand.IntN
	}
	if o.NewRunID == nil {
		o.NewRunID = uuid.NewString
	}
	if o.Settings == (settings.Settings{}) {
		o.Settings = settings.Defaults()
	}
}

// Engine is the polling state machine. All methods are safe for concurrent use; sinks must
// not call back into the engine.
type Engine struct {
	gw     market.Gateway
	sink   alerting.Sink
	opts   Options
	logger zerolog.Logger

	startMu  sync.Mutex
	mu       sync.Mutex
	state    State
	settings settings.Settings
	run      *run
	stats    Stats
}

type run struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	filters  []filters.Filter
	settings settings.Settings
	ladder   Ladder

	searchCounter       int
	cycleCounter        int
	cycleTarget         int
	filterCursor        int
	consecutiveFailures int
	seen                map[int64]struct{}

	timer     scheduler.Timer
	nextDelay time.Duration
}

// New constructs an engine in the Stopped state.
func New(gw market.Gateway, sink alerting.Sink, opts Options, logger zerolog.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		gw:       gw,
		sink:     sink,
		opts:     opts,
		logger:   logger.With().Str("component", "sniper").Logger(),
		settings: settings.Normalize(opts.Settings),
	}
}

// Start begins a run. It returns false when a run is already active or when no criteria
// can be resolved. ctx bounds the run's gateway calls in addition to Stop.
func (e *Engine) Start(ctx context.Context) bool {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.mu.Lock()
	if e.state == Running {
		e.mu.Unlock()
		e.sink.Log("Sniper is already started!", alerting.SeverityWarning)
		return false
	}
	cfg := e.settings
	e.mu.Unlock()

	selected, err := e.resolveFilters(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("resolve filters")
		e.sink.Log("No search criteria available - select a filter or open the search page", alerting.SeverityError)
		return false
	}
	coins := e.coinsLabel(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:        e.opts.NewRunID(),
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: e.opts.Clock.Now(),
		filters:   selected,
		settings:  cfg,
		ladder:    BuildLadder(cfg.Search, e.opts.Ladder),
		seen:      make(map[int64]struct{}),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.cycleTarget = e.uniformLocked(cfg.Safety.CyclesPerPause)
	e.run = r
	e.state = Running
	e.sink.Log(fmt.Sprintf("Sniper started! %sUsing %d filters", coins, len(selected)), alerting.SeverityInfo)
	e.logger.Info().Str("run_id", r.id).Int("filters", len(selected)).Int("ladder", len(r.ladder)).
		Str("rotation", string(cfg.Search.FilterRotation)).Bool("dry_run", cfg.Search.DryRun).Msg("run started")
	e.scheduleLocked(r, 0, func() { e.performSearch(r) })
	return true
}

// Stop ends the active run. It returns false when nothing is running.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		e.sink.Log("Sniper is already stopped!", alerting.SeverityWarning)
		return false
	}
	e.stopLocked()
	return true
}

// UpdateSettings replaces the settings used by the next run. An active run keeps its snapshot.
func (e *Engine) UpdateSettings(s settings.Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = settings.Normalize(s)
}

// Settings returns the settings the next run will use.
func (e *Engine) Settings() settings.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// State reports whether a run is active.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns the cumulative counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Snapshot returns state plus the counters of the current or most recent run.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{State: e.state, Stats: e.stats}
	if r := e.run; r != nil {
		snap.RunID = r.id
		snap.StartedAt = r.startedAt
		snap.Filters = len(r.filters)
		snap.SearchCounter = r.searchCounter
		snap.CycleCounter = r.cycleCounter
		snap.CycleTarget = r.cycleTarget
		snap.ConsecutiveFailures = r.consecutiveFailures
		snap.SeenTrades = len(r.seen)
		snap.NextDelay = r.nextDelay
	}
	return snap
}

// Done is closed when the current run ends. With no run it returns a closed channel.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil || e.state != Running {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return e.run.done
}

func (e *Engine) resolveFilters(ctx context.Context) ([]filters.Filter, error) {
	if e.opts.Filters != nil {
		if selected := e.opts.Filters.Selected(); len(selected) > 0 {
			return selected, nil
		}
	}
	if e.opts.View == nil {
		return nil, ErrNoCriteria
	}

	current, err := e.opts.View.CurrentCriteria(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current criteria: %w: %w", ErrNoCriteria, err)
	}
	baseline, err := e.opts.View.DefaultCriteria(ctx)
	if err != nil || len(baseline) == 0 {
		baseline = filters.BaselineCriteria()
	}
	return []filters.Filter{{
		Name:     filters.Name(current, baseline, nil),
		Bucket:   market.BucketPlayer,
		Criteria: current.Clone(),
	}}, nil
}

func (e *Engine) coinsLabel(ctx context.Context) string {
	reader, ok := e.gw.(market.CoinReader)
	if !ok {
		return ""
	}
	coins, err := reader.Coins(ctx)
	if err != nil {
		e.logger.Debug().Err(err).Msg("read coins")
		return ""
	}
	return fmt.Sprintf("Coins: %s, ", humanize.Comma(coins))
}

func (e *Engine) activeLocked(r *run) bool {
	return e.state == Running && e.run == r
}

func (e *Engine) active(r *run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeLocked(r)
}

func (e *Engine) stopLocked() {
	r := e.run
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.cancel()
	r.seen = make(map[int64]struct{})
	e.state = Stopped
	close(r.done)
	e.sink.Log("Sniper stopped!", alerting.SeverityWarning)
	e.logger.Info().Str("run_id", r.id).Int("searches", r.searchCounter).Msg("run stopped")
}

func (e *Engine) fatalLocked(msg string) {
	e.sink.Log(msg, alerting.SeverityError)
	e.cueLocked(alerting.CueError)
	e.stopLocked()
}

func (e *Engine) cueLocked(cue alerting.Cue) {
	e.playCue(e.run.settings.Search, cue)
}

func (e *Engine) playCue(s settings.Search, cue alerting.Cue) {
	switch cue {
	case alerting.CueSuccess:
		if !s.WinSound {
			return
		}
	case alerting.CueFail:
		if !s.FailSound {
			return
		}
	case alerting.CueError:
		if !s.ErrorSound {
			return
		}
	}
	e.sink.PlayCue(cue)
}

// uniformLocked draws from the inclusive range.
func (e *Engine) uniformLocked(r settings.Range) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + e.opts.IntN(r.Max-r.Min+1)
}

func (e *Engine) scheduleLocked(r *run, delay time.Duration, f func()) {
	r.nextDelay = delay
	r.timer = e.opts.Clock.AfterFunc(delay, f)
}

// selectFilterLocked returns the index into r.filters used by the next search.
func (e *Engine) selectFilterLocked(r *run) int {
	n := len(r.filters)
	switch r.settings.Search.FilterRotation {
	case settings.RotationRandom:
		return e.opts.IntN(n)
	case settings.RotationPerCycle:
		return r.filterCursor % n
	default:
		return r.searchCounter % n
	}
}

func (e *Engine) buildRequestLocked(r *run, f filters.Filter) (market.SearchRequest, error) {
	bucket, err := market.ParseBucket(string(f.Bucket))
	if err != nil {
		return market.SearchRequest{}, err
	}

	crit := f.Criteria.Clone()
	delete(crit, market.KeySellPrice)
	r.ladder.Apply(crit, r.searchCounter)

	step := e.opts.MaxBidStep
	lo := (e.opts.MaxBid.Min + step - 1) / step
	hi := e.opts.MaxBid.Max / step
	crit.Set(market.KeyMaxBid, e.uniformLocked(settings.Range{Min: lo, Max: hi})*step)

	return market.SearchRequest{Bucket: bucket, Criteria: crit, Page: 1}, nil
}

// dropFilterLocked removes an unusable filter from the run. The run stops when none remain.
func (e *Engine) dropFilterLocked(r *run, idx int, err error) {
	f := r.filters[idx]
	e.logger.Error().Err(err).Str("run_id", r.id).Str("filter_id", f.ID).Msg("filter unusable")
	e.sink.Log(fmt.Sprintf("%s: %v - skipping filter", f.Name, err), alerting.SeverityError)
	e.cueLocked(alerting.CueFail)

	kept := make([]filters.Filter, 0, len(r.filters)-1)
	kept = append(kept, r.filters[:idx]...)
	r.filters = append(kept, r.filters[idx+1:]...)
	if len(r.filters) == 0 {
		e.fatalLocked("No usable filters left - stopping sniper")
		return
	}
	e.scheduleNextLocked(r)
}

func (e *Engine) requestContext(r *run) (context.Context, context.CancelFunc) {
	if e.opts.RequestTimeout > 0 {
		return context.WithTimeout(r.ctx, e.opts.RequestTimeout)
	}
	return context.WithCancel(r.ctx)
}

// detached keeps request values but survives Stop. Used for bids and relists, which must not
// be abandoned half way.
func (e *Engine) detached(r *run) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(r.ctx)
	if e.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) pageView(r *run, page string) {
	viewer, ok := e.gw.(market.PageViewer)
	if !ok {
		return
	}
	ctx, cancel := e.requestContext(r)
	defer cancel()
	if err := viewer.PageView(ctx, page); err != nil {
		e.logger.Debug().Err(err).Str("page", page).Msg("page view")
	}
}

func (e *Engine) performSearch(r *run) {
	e.mu.Lock()
	if !e.activeLocked(r) {
		e.mu.Unlock()
		return
	}
	r.timer = nil
	idx := e.selectFilterLocked(r)
	f := r.filters[idx]
	req, err := e.buildRequestLocked(r, f)
	if err != nil {
		e.dropFilterLocked(r, idx, err)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ctx, cancel := e.requestContext(r)
	resp, err := e.gw.Search(ctx, req)
	cancel()
	if err != nil {
		e.logger.Debug().Err(err).Str("run_id", r.id).Msg("search call failed")
		resp = market.SearchResponse{Success: false, StatusText: err.Error()}
	}
	e.handleResponse(r, f, resp)
}

func (e *Engine) handleResponse(r *run, f filters.Filter, resp market.SearchResponse) {
	e.mu.Lock()
	if !e.activeLocked(r) {
		e.mu.Unlock()
		e.logger.Debug().Str("run_id", r.id).Msg("discarding response after stop")
		return
	}

	if !resp.Success {
		e.handleFailureLocked(r, resp)
		e.mu.Unlock()
		return
	}

	r.consecutiveFailures = 0
	if n := len(resp.Items); n > e.opts.SafeguardThreshold {
		e.fatalLocked(fmt.Sprintf("SAFEGUARD: Too many results (%d) - STOPPING to prevent mass buying!", n))
		e.mu.Unlock()
		return
	}

	items := resp.Items
	if r.settings.Search.SortResults {
		items = sortedItems(items)
	}
	fresh := make([]market.Item, 0, len(items))
	for _, item := range items {
		if _, ok := r.seen[item.TradeID]; ok {
			continue
		}
		r.seen[item.TradeID] = struct{}{}
		fresh = append(fresh, item)
	}
	e.stats.Searches++
	e.mu.Unlock()

	e.pageView(r, market.PageResults)

	for _, item := range fresh {
		if !e.active(r) {
			return
		}
		e.buy(r, f, item, item.BuyNowPrice)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activeLocked(r) {
		return
	}
	r.searchCounter++
	r.cycleCounter++
	e.scheduleNextLocked(r)
}

func (e *Engine) handleFailureLocked(r *run, resp market.SearchResponse) {
	class := Classify(resp)
	e.logger.Warn().Str("run_id", r.id).Int("status", resp.Status).Str("status_text", resp.StatusText).
		Str("error_code", resp.ErrorCode).Stringer("class", class).Msg("search failed")

	switch class {
	case FailureCaptcha:
		e.fatalLocked("CAPTCHA detected - stopping sniper")
		return
	case FailureMaintenance:
		e.fatalLocked("Server maintenance detected - stopping sniper")
		return
	}

	r.consecutiveFailures++
	if r.consecutiveFailures >= e.opts.FailureThreshold {
		e.fatalLocked(fmt.Sprintf("Search failed %d times consecutively - auto-stopping", r.consecutiveFailures))
		return
	}
	e.sink.Log(fmt.Sprintf("Search failed (%d/%d) - Status: %d", r.consecutiveFailures, e.opts.FailureThreshold, resp.Status), alerting.SeverityWarning)
	e.scheduleNextLocked(r)
}

func (e *Engine) scheduleNextLocked(r *run) {
	safety := r.settings.Safety
	if safety.EnableCycles && r.cycleCounter >= r.cycleTarget {
		delay := time.Duration(e.uniformLocked(safety.DelayBetweenCycles)) * time.Second
		e.sink.Log(fmt.Sprintf("Cycle limit reached - pausing for %ss", humanize.Comma(int64(delay/time.Second))), alerting.SeverityInfo)
		r.cycleCounter = 0
		r.cycleTarget = e.uniformLocked(safety.CyclesPerPause)
		if r.settings.Search.FilterRotation == settings.RotationPerCycle {
			r.filterCursor++
		}
		e.scheduleLocked(r, delay, func() { e.resume(r) })
		return
	}

	delay := time.Duration(e.uniformLocked(safety.DelayBetweenSearches)) * time.Second
	e.scheduleLocked(r, delay, func() {
		if !e.active(r) {
			return
		}
		e.pageView(r, market.PageSearch)
		e.performSearch(r)
	})
}

func (e *Engine) resume(r *run) {
	if !e.active(r) {
		return
	}
	coins := e.coinsLabel(r.ctx)
	e.sink.Log(fmt.Sprintf("Resuming sniper! %sUsing %d filters", coins, len(r.filters)), alerting.SeverityInfo)
	e.pageView(r, market.PageSearch)
	e.performSearch(r)
}

func (e *Engine) buy(r *run, f filters.Filter, item market.Item, buyPrice int) {
	search := r.settings.Search
	sell := f.SellPrice()
	purchase := Purchase{
		RunID:      r.id,
		FilterID:   f.ID,
		FilterName: f.Name,
		Item:       item,
		Price:      buyPrice,
		SellPrice:  sell,
		At:         e.opts.Clock.Now(),
	}
	label := fmt.Sprintf("%s: %s", f.Name, humanize.Comma(int64(buyPrice)))

	if search.DryRun {
		e.sink.Log(label+" | dry buy, not actually buying", alerting.SeveritySuccess)
		e.playCue(search, alerting.CueSuccess)
		purchase.Outcome = OutcomeDryRun
		e.record(r, purchase)
		return
	}

	ctx, cancel := e.detached(r)
	ok, err := e.gw.Bid(ctx, item, buyPrice)
	cancel()
	if err != nil {
		e.logger.Warn().Err(err).Int64("trade_id", item.TradeID).Msg("bid call failed")
	}
	if err != nil || !ok {
		e.sink.Log(label+" | buy failed", alerting.SeverityError)
		e.playCue(search, alerting.CueFail)
		e.mu.Lock()
		e.stats.Fails++
		e.mu.Unlock()
		purchase.Outcome = OutcomeFailed
		e.record(r, purchase)
		return
	}

	e.mu.Lock()
	e.stats.Wins++
	e.mu.Unlock()
	e.playCue(search, alerting.CueSuccess)
	purchase.Outcome = OutcomeBought
	if sell > 0 {
		e.sink.Log(fmt.Sprintf("%s | bought - will sell for %s (profit %s)", label, humanize.Comma(int64(sell)), price.Profit(buyPrice, sell).String()), alerting.SeveritySuccess)
	} else {
		e.sink.Log(label+" | bought", alerting.SeveritySuccess)
	}
	e.record(r, purchase)

	if sell > 0 {
		e.relist(r, item, sell)
	}
}

func (e *Engine) relist(r *run, item market.Item, sell int) {
	ctx, cancel := e.detached(r)
	full, err := e.gw.TransferPileFull(ctx)
	cancel()
	if err != nil {
		e.logger.Warn().Err(err).Msg("transfer pile check failed")
	}
	if full {
		e.sink.Log("Transfer pile is full, cannot list item", alerting.SeverityWarning)
		return
	}

	start := price.NextLower(sell)
	// Not tracked by the run: Stop cancels the next search, never the listing of a bought item.
	e.opts.Clock.AfterFunc(e.opts.RelistDelay, func() {
		ctx, cancel := e.detached(r)
		defer cancel()
		if err := e.gw.Relist(ctx, item, start, sell, e.opts.RelistDuration); err != nil {
			e.logger.Warn().Err(err).Int64("trade_id", item.TradeID).Msg("relist failed")
			return
		}
		e.sink.Log(fmt.Sprintf("Item listed for %s", humanize.Comma(int64(sell))), alerting.SeverityInfo)
	})
}

func (e *Engine) record(r *run, p Purchase) {
	if e.opts.Recorder == nil {
		return
	}
	ctx, cancel := e.detached(r)
	defer cancel()
	if err := e.opts.Recorder.RecordPurchase(ctx, p); err != nil {
		e.logger.Error().Err(err).Int64("trade_id", p.Item.TradeID).Msg("record purchase")
	}
}

// sortedItems orders by price, then by soonest expiry.
func sortedItems(items []market.Item) []market.Item {
	out := append([]market.Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BuyNowPrice != out[j].BuyNowPrice {
			return out[i].BuyNowPrice < out[j].BuyNowPrice
		}
		return out[i].Expires < out[j].Expires
	})
	return out
}
