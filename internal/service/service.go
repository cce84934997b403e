package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"transfer-sniper/internal/scheduler"
	"transfer-sniper/internal/sniper"
	"transfer-sniper/internal/storage"
)

var (
	// ErrLockHeld means another process holds the single-instance lock.
	ErrLockHeld = errors.New("service: advisory lock held elsewhere")
	// ErrNotStarted means the engine refused to start.
	ErrNotStarted = errors.New("service: engine did not start")
)

// Engine is the part of the sniper engine the service drives.
type Engine interface {
	Start(ctx context.Context) bool
	Stop() bool
	Done() <-chan struct{}
	Snapshot() sniper.Snapshot
}

// Options configure a Service.
type Options struct {
	// LockKey enables the advisory lock when non-zero and a locker is present.
	LockKey int64
	// KeepAlive keeps Run waiting for ctx after the engine stops on its own. Used when the
	// control API may restart the engine.
	KeepAlive bool
	// StatusInterval enables periodic status lines.
	StatusInterval time.Duration
}

// Service owns one engine run for the lifetime of the process.
type Service struct {
	engine Engine
	store  storage.PurchaseStore
	locker storage.AdvisoryLocker
	opts   Options
	logger zerolog.Logger
}

// New constructs the service. store may be nil.
func New(engine Engine, store storage.PurchaseStore, opts Options, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		engine: engine,
		store:  store,
		locker: locker,
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run acquires the lock, starts the engine and blocks until ctx is cancelled or, without
// KeepAlive, until the engine stops on its own.
func (s *Service) Run(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		return ErrLockHeld
	}
	if unlock != nil {
		defer unlock()
	}

	if !s.engine.Start(ctx) {
		if !s.opts.KeepAlive {
			return ErrNotStarted
		}
		s.logger.Warn().Msg("engine did not start; waiting for a start over the control api")
	}

	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()
	if s.opts.StatusInterval > 0 {
		ticker := scheduler.NewTicker(scheduler.Options{Interval: s.opts.StatusInterval}, s.logger)
		go func() { _ = ticker.Run(statusCtx, s.ReportStatus) }()
	}

	if s.opts.KeepAlive {
		<-ctx.Done()
		s.stopEngine()
		return nil
	}

	select {
	case <-ctx.Done():
		s.stopEngine()
	case <-s.engine.Done():
		s.logger.Info().Msg("engine stopped on its own")
	}
	return nil
}

func (s *Service) stopEngine() {
	if s.engine.Snapshot().State == sniper.Running {
		s.engine.Stop()
	}
}

// ReportStatus logs one status line with the engine counters and ledger totals.
func (s *Service) ReportStatus(ctx context.Context, at time.Time) error {
	snap := s.engine.Snapshot()
	ev := s.logger.Info().Time("at", at).
		Str("state", snap.State.String()).
		Int("search_counter", snap.SearchCounter).
		Int("cycle_counter", snap.CycleCounter).
		Int64("searches", snap.Stats.Searches).
		Int64("wins", snap.Stats.Wins).
		Int64("fails", snap.Stats.Fails)

	if s.store != nil {
		bought, err := s.store.CountPurchases(ctx, storage.OutcomeBought)
		if err != nil {
			return fmt.Errorf("count purchases: %w", err)
		}
		ev = ev.Int64("ledger_bought", bought)
	}
	ev.Msg("status")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
