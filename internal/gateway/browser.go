// Package gateway drives the host web app's own service objects through Chrome DevTools.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/market"
)

// ErrPageNotFound means no open tab matched the configured URL.
var ErrPageNotFound = errors.New("gateway: host page not found")

// Options configure Connect.
type Options struct {
	// DevToolsURL of a browser started with --remote-debugging-port.
	DevToolsURL string
	// PageURLMatch selects the tab whose URL contains it.
	PageURLMatch string
	// Timeout bounds each evaluation. Default 15s.
	Timeout time.Duration
}

// Browser evaluates marketplace calls inside an already-open host tab.
type Browser struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  zerolog.Logger
}

// Connect attaches to the running browser and picks the host tab.
func Connect(ctx context.Context, opts Options, logger zerolog.Logger) (*Browser, error) {
	if opts.DevToolsURL == "" {
		return nil, fmt.Errorf("browser.devtools_url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	logger = logger.With().Str("component", "gateway").Logger()

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), opts.DevToolsURL)
	attachCtx, attachCancel := chromedp.NewContext(allocCtx)

	targets, err := chromedp.Targets(attachCtx)
	if err != nil {
		attachCancel()
		allocCancel()
		return nil, fmt.Errorf("list browser targets: %w", err)
	}
	info := pickTarget(targets, opts.PageURLMatch)
	if info == nil {
		attachCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: no tab matching %q", ErrPageNotFound, opts.PageURLMatch)
	}

	tabCtx, tabCancel := chromedp.NewContext(attachCtx, chromedp.WithTargetID(info.TargetID))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		attachCancel()
		allocCancel()
		return nil, fmt.Errorf("attach to %s: %w", info.URL, err)
	}
	logger.Info().Str("url", info.URL).Str("target", string(info.TargetID)).Msg("attached to host page")

	return &Browser{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			attachCancel()
			allocCancel()
		},
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

func pickTarget(targets []*target.Info, match string) *target.Info {
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if match == "" || strings.Contains(t.URL, match) {
			return t
		}
	}
	return nil
}

// Close detaches from the browser. The browser itself keeps running.
func (b *Browser) Close() {
	if b == nil || b.cancel == nil {
		return
	}
	b.cancel()
}

// eval runs script in the page, awaiting promises, and stores the JSON result in out.
func (b *Browser) eval(ctx context.Context, script string, out any) error {
	runCtx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var raw []byte
	err := chromedp.Run(runCtx, chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true).WithReturnByValue(true)
	}))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if out == nil {
		return nil
	}
	if rawOut, ok := out.(*[]byte); ok {
		*rawOut = raw
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

// Search runs one first-page transfer market query.
func (b *Browser) Search(ctx context.Context, req market.SearchRequest) (market.SearchResponse, error) {
	script, err := searchScript(req)
	if err != nil {
		return market.SearchResponse{}, err
	}
	var resp market.SearchResponse
	if err := b.eval(ctx, script, &resp); err != nil {
		return market.SearchResponse{}, fmt.Errorf("search transfer market: %w", err)
	}
	b.logger.Debug().Int("status", resp.Status).Bool("success", resp.Success).Int("items", len(resp.Items)).Msg("search")
	return resp, nil
}

// Bid places a buy-now bid on item.
func (b *Browser) Bid(ctx context.Context, item market.Item, price int) (bool, error) {
	var ok bool
	if err := b.eval(ctx, bidScript(item.TradeID, price), &ok); err != nil {
		return false, fmt.Errorf("bid on trade %d: %w", item.TradeID, err)
	}
	return ok, nil
}

// Relist lists a won item on the transfer market.
func (b *Browser) Relist(ctx context.Context, item market.Item, startPrice, buyNowPrice int, duration time.Duration) error {
	var ok bool
	if err := b.eval(ctx, relistScript(item.TradeID, startPrice, buyNowPrice, duration), &ok); err != nil {
		return fmt.Errorf("relist trade %d: %w", item.TradeID, err)
	}
	if !ok {
		return fmt.Errorf("relist trade %d rejected", item.TradeID)
	}
	return nil
}

// TransferPileFull reports whether the transfer list is at capacity.
func (b *Browser) TransferPileFull(ctx context.Context) (bool, error) {
	var full bool
	if err := b.eval(ctx, pileFullScript, &full); err != nil {
		return false, fmt.Errorf("check transfer pile: %w", err)
	}
	return full, nil
}

// PageView emits the host's page-view telemetry event.
func (b *Browser) PageView(ctx context.Context, page string) error {
	return b.eval(ctx, pageViewScript(page), nil)
}

// Coins returns the account balance.
func (b *Browser) Coins(ctx context.Context) (int64, error) {
	var coins int64
	if err := b.eval(ctx, coinsScript, &coins); err != nil {
		return 0, fmt.Errorf("read coins: %w", err)
	}
	return coins, nil
}

// CurrentCriteria reads the criteria shown on the search screen.
func (b *Browser) CurrentCriteria(ctx context.Context) (market.Criteria, error) {
	var crit market.Criteria
	if err := b.eval(ctx, currentCriteriaScript, &crit); err != nil {
		return nil, fmt.Errorf("read search criteria: %w", err)
	}
	return crit, nil
}

// DefaultCriteria reads the host's blank search criteria.
func (b *Browser) DefaultCriteria(ctx context.Context) (market.Criteria, error) {
	var crit market.Criteria
	if err := b.eval(ctx, defaultCriteriaScript, &crit); err != nil {
		return nil, fmt.Errorf("read default criteria: %w", err)
	}
	return crit, nil
}

// CurrentReference reads the player the search screen is narrowed to, if any.
func (b *Browser) CurrentReference(ctx context.Context) (*filters.ReferenceItem, error) {
	var raw []byte
	if err := b.eval(ctx, playerDataScript, &raw); err != nil {
		return nil, fmt.Errorf("read player data: %w", err)
	}
	return decodeReference(raw)
}

var (
	_ market.Gateway    = (*Browser)(nil)
	_ market.PageViewer = (*Browser)(nil)
	_ market.CoinReader = (*Browser)(nil)
	_ market.ViewState  = (*Browser)(nil)
)
