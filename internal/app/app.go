package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"transfer-sniper/internal/alerting"
	"transfer-sniper/internal/api"
	"transfer-sniper/internal/config"
	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/gateway"
	"transfer-sniper/internal/localstore"
	"transfer-sniper/internal/logging"
	"transfer-sniper/internal/service"
	"transfer-sniper/internal/settings"
	"transfer-sniper/internal/sniper"
	"transfer-sniper/internal/storage"
	"transfer-sniper/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output and console sink lines. Defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

// local bundles the sqlite-backed stores.
type local struct {
	kv       *localstore.Store
	settings *settings.Store
	filters  *filters.Store
}

func (a *App) openLocal(ctx context.Context) (*local, func(), error) {
	kv, err := localstore.Open(a.Config.Local.Path)
	if err != nil {
		return nil, nil, err
	}
	l := &local{
		kv:       kv,
		settings: settings.NewStore(kv, a.Config.Local.SettingsKey, a.Logger),
		filters:  filters.NewStore(kv, filters.Options{Key: a.Config.Local.FiltersKey}, a.Logger),
	}
	if err := l.filters.Load(ctx); err != nil {
		kv.Close()
		return nil, nil, err
	}
	return l, func() { _ = kv.Close() }, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) connectBrowser(ctx context.Context) (*gateway.Browser, error) {
	return gateway.Connect(ctx, gateway.Options{
		DevToolsURL:  a.Config.Browser.DevToolsURL,
		PageURLMatch: a.Config.Browser.PageURLMatch,
		Timeout:      a.Config.Browser.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

// newSinks builds the operator sink fan-out. The forwarder is nil when no remote channel is configured.
func (a *App) newSinks() (alerting.Sink, *alerting.Forwarder) {
	sinks := alerting.Multi{alerting.NewLogSink(a.Logger)}
	if a.Config.Alerting.Console.Enabled {
		out := a.out()
		sinks = append(sinks, alerting.NewConsole(out, alerting.ConsoleOptions{
			Color: logging.IsTerminal(out),
			Bell:  a.Config.Alerting.Console.Bell,
		}))
	}

	var fwd *alerting.Forwarder
	if n := a.newNotifier(); n != nil {
		sev := make([]alerting.Severity, 0, len(a.Config.Alerting.Telegram.Severities))
		for _, s := range a.Config.Alerting.Telegram.Severities {
			sev = append(sev, alerting.Severity(s))
		}
		fwd = alerting.NewForwarder(n, alerting.ForwarderOptions{
			Severities: sev,
			Source:     a.Config.App.Name,
			Timeout:    a.Config.Alerting.Telegram.Timeout,
		}, a.Logger)
		sinks = append(sinks, fwd)
	}
	return sinks, fwd
}

func (a *App) engineOptions() sniper.Options {
	cfg := a.Config.Engine
	return sniper.Options{
		FailureThreshold:   cfg.FailureThreshold,
		SafeguardThreshold: cfg.SafeguardThreshold,
		MaxBid:             settings.Range{Min: cfg.MaxBidMin, Max: cfg.MaxBidMax},
		MaxBidStep:         cfg.MaxBidStep,
		RelistDelay:        cfg.RelistDelay,
		RelistDuration:     cfg.RelistDuration,
		Ladder: sniper.LadderOptions{
			BidStart:   cfg.BidLadderStart,
			BuyStart:   cfg.BuyLadderStart,
			DefaultCap: cfg.DefaultLadderCap,
		},
		RequestTimeout: cfg.RequestTimeout,
	}
}

// Run executes the long-running sniper service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Logger.Info().Str("version", version.Version).Str("commit", version.Commit).Msg("sniper starting")

	loc, closeLocal, err := a.openLocal(ctx)
	if err != nil {
		return err
	}
	defer closeLocal()

	browser, err := a.connectBrowser(ctx)
	if err != nil {
		return err
	}
	defer browser.Close()

	if baseline, err := browser.DefaultCriteria(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("default criteria unavailable; naming against built-in baseline")
	} else {
		loc.filters.SetBaseline(baseline)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sink, fwd := a.newSinks()

	opts := a.engineOptions()
	opts.Settings = loc.settings.Load(ctx)
	opts.Filters = loc.filters
	opts.View = browser
	var ledger storage.PurchaseStore
	if store != nil {
		ledger = store
		opts.Recorder = service.NewLedgerRecorder(store)
	}
	engine := sniper.New(browser, sink, opts, a.Logger)

	svc := service.New(engine, ledger, service.Options{
		LockKey:        a.Config.Engine.AdvisoryLockKey,
		KeepAlive:      a.Config.API.Listen != "",
		StatusInterval: a.Config.Engine.StatusInterval,
	}, a.Logger)

	auxCtx, stopAux := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if fwd != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fwd.Run(auxCtx)
		}()
	}
	if addr := a.Config.API.Listen; addr != "" {
		srv := api.New(ctx, engine, loc.filters, loc.settings, a.Logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(auxCtx, addr); err != nil {
				a.Logger.Error().Err(err).Msg("control api stopped")
				cancel()
			}
		}()
	}

	a.Logger.Info().Msg("starting sniper service")
	err = svc.Run(ctx)
	stopAux()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sniper service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the purchase ledger.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
	// Outcome keeps only rows with this outcome when set.
	Outcome string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit   int
	Outcome string
	Summary bool
}

// PruneOptions configure the prune command.
type PruneOptions struct {
	Before time.Time
}

func requireLedger(store *storage.Store, action string) error {
	if store == nil {
		return fmt.Errorf("database not configured; cannot %s", action)
	}
	return nil
}
