package mitigate

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/voss/memguard/internal/logger"
	"codeberg.org/voss/memguard/internal/pressure"
)

// CleanupTarget is any evictable cache or storage the executor may shrink.
// Targets handle their own internal synchronization; Trim and Clear may be
// called concurrently with the application's own use of the target.
type CleanupTarget interface {
	Name() string
	Trim(fraction float64) error
	Clear() error
}

// StaleStore is persisted storage holding entries that age out, trimmed
// more cautiously than in-memory targets.
type StaleStore interface {
	TrimStale(fraction float64) error
	Clear() error
}

// Restarter performs the emergency last-resort restart.
type Restarter interface {
	Restart() error
}

type Config struct {
	LightFraction float64       // warning-tier trim per target
	HeavyFraction float64       // critical-tier trim per target
	StaleFraction float64       // critical-tier stale-store trim
	SettleDelay   time.Duration // wait before the emergency restart
	GCNudge       bool          // run a GC pass on warning
	DryRun        bool          // log what would happen, touch nothing
}

func DefaultConfig() Config {
	return Config{
		LightFraction: 0.10,
		HeavyFraction: 0.50,
		StaleFraction: 0.25,
		SettleDelay:   500 * time.Millisecond,
	}
}

// Executor translates a pressure tier into remediation of strictly
// increasing aggressiveness against its registered targets. Actions run as
// fire-and-forget tasks; the sampling loop is never blocked.
type Executor struct {
	cfg       Config
	restarter Restarter

	mu      sync.Mutex
	targets []CleanupTarget
	store   StaleStore

	inFlight         [4]atomic.Bool // indexed by pressure.Level
	restartScheduled atomic.Bool
	wg               sync.WaitGroup
}

func NewExecutor(cfg Config, restarter Restarter) *Executor {
	def := DefaultConfig()
	if cfg.LightFraction <= 0 || cfg.LightFraction > 1 {
		cfg.LightFraction = def.LightFraction
	}
	if cfg.HeavyFraction <= 0 || cfg.HeavyFraction > 1 {
		cfg.HeavyFraction = def.HeavyFraction
	}
	if cfg.StaleFraction <= 0 || cfg.StaleFraction > 1 {
		cfg.StaleFraction = def.StaleFraction
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}

	return &Executor{cfg: cfg, restarter: restarter}
}

// Register adds a cleanup target. Safe to call at any time.
func (e *Executor) Register(t CleanupTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets = append(e.targets, t)
}

// AttachStore wires the persisted store trimmed on Critical and cleared on
// Emergency.
func (e *Executor) AttachStore(s StaleStore) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = s
}

// Execute dispatches the remediation for the given tier. A tier whose
// previous remediation is still running is skipped, making back-to-back
// invocations idempotent.
func (e *Executor) Execute(level pressure.Level, usedMB float64) {
	if e.cfg.DryRun {
		logger.Info().
			Str("level", level.String()).
			Float64("used_mb", usedMB).
			Msg("Monitor mode: mitigation skipped")

		return
	}

	switch level {
	case pressure.Warning:
		e.dispatch(level, e.warning)
	case pressure.Critical:
		e.dispatch(level, e.critical)
	case pressure.Emergency:
		e.dispatch(level, e.emergency)
	case pressure.Normal:
		// Normal is the absence of pressure, never a mitigation tier
	}
}

// Wait blocks until all dispatched remediation tasks have finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) dispatch(level pressure.Level, fn func()) {
	guard := &e.inFlight[level]
	if !guard.CompareAndSwap(false, true) {
		logger.Debug().
			Str("level", level.String()).
			Msg("Mitigation already in flight, skipping")

		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer guard.Store(false)
		fn()
	}()
}

func (e *Executor) warning() {
	if e.cfg.GCNudge {
		runtime.GC()
		logger.Debug().Msg("GC pass completed")
	}

	e.forEachTarget("trim", func(t CleanupTarget) error {
		return t.Trim(e.cfg.LightFraction)
	})
}

func (e *Executor) critical() {
	e.forEachTarget("trim", func(t CleanupTarget) error {
		return t.Trim(e.cfg.HeavyFraction)
	})

	if store := e.staleStore(); store != nil {
		if err := store.TrimStale(e.cfg.StaleFraction); err != nil {
			logger.Error().Err(err).Msg("Stale store trim failed")
		}
	}
}

func (e *Executor) emergency() {
	e.forEachTarget("clear", func(t CleanupTarget) error {
		return t.Clear()
	})

	if store := e.staleStore(); store != nil {
		if err := store.Clear(); err != nil {
			logger.Error().Err(err).Msg("Store clear failed")
		}
	}

	e.scheduleRestart()
}

// scheduleRestart arms the last-resort restart once, after a short delay
// that lets in-flight clears finish. The latch is never released: a second
// Emergency before the delay elapses must not stack restarts.
func (e *Executor) scheduleRestart() {
	if e.restarter == nil {
		return
	}
	if !e.restartScheduled.CompareAndSwap(false, true) {
		logger.Debug().Msg("Restart already scheduled")
		return
	}

	logger.Warn().
		Dur("settle_delay", e.cfg.SettleDelay).
		Msg("Emergency restart scheduled")

	time.AfterFunc(e.cfg.SettleDelay, func() {
		if err := e.restarter.Restart(); err != nil {
			// Nothing left to try; the supervisor is the next line of defense
			logger.Error().Err(err).Msg("Emergency restart failed")
		}
	})
}

func (e *Executor) staleStore() StaleStore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

// forEachTarget applies fn to every registered target, isolating each
// target's failure from the rest of the pass.
func (e *Executor) forEachTarget(action string, fn func(CleanupTarget) error) {
	e.mu.Lock()
	targets := make([]CleanupTarget, len(e.targets))
	copy(targets, e.targets)
	e.mu.Unlock()

	for _, t := range targets {
		e.applyTarget(action, t, fn)
	}
}

func (e *Executor) applyTarget(action string, t CleanupTarget, fn func(CleanupTarget) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("target", t.Name()).
				Str("action", action).
				Interface("panic", r).
				Msg("Cleanup target panicked")
		}
	}()

	if err := fn(t); err != nil {
		logger.Error().
			Str("target", t.Name()).
			Str("action", action).
			Err(err).
			Msg("Cleanup target failed")

		return
	}

	logger.Debug().
		Str("target", t.Name()).
		Str("action", action).
		Msg("Cleanup target processed")
}
