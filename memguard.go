// Package memguard is an adaptive memory-pressure fail-safe: a watchdog
// that samples memory usage, classifies pressure into escalating severity
// tiers and triggers graduated mitigation against registered cleanup
// targets, throttling duplicate alerts per tier.
package memguard

import (
	"context"
	"time"

	"codeberg.org/voss/memguard/internal/errors"
	"codeberg.org/voss/memguard/internal/eventbus"
	"codeberg.org/voss/memguard/internal/mitigate"
	"codeberg.org/voss/memguard/internal/monitor"
	"codeberg.org/voss/memguard/internal/pressure"
	"codeberg.org/voss/memguard/internal/sampler"
)

// Re-exported building blocks so hosts only import this package.
type (
	Sample           = sampler.Sample
	SamplerFunc      = sampler.Func
	Level            = pressure.Level
	Thresholds       = pressure.Thresholds
	Event            = pressure.Event
	CleanupTarget    = mitigate.CleanupTarget
	Restarter        = mitigate.Restarter
	MitigationConfig = mitigate.Config
	ListenerHandle   = monitor.Handle
	HistoryStats     = monitor.Stats
)

const (
	Normal    = pressure.Normal
	Warning   = pressure.Warning
	Critical  = pressure.Critical
	Emergency = pressure.Emergency
)

// Options configures a Guard. Plain data so tests and production supply it
// identically.
type Options struct {
	Thresholds     Thresholds
	SampleInterval time.Duration
	ThrottleWindow time.Duration
	HistorySize    int
	Sampler        SamplerFunc
	Restarter      Restarter
	Mitigation     MitigationConfig
}

func DefaultOptions() Options {
	return Options{
		Thresholds: Thresholds{
			WarningMB:   60,
			CriticalMB:  100,
			EmergencyMB: 140,
		},
		SampleInterval: 5 * time.Second,
		ThrottleWindow: 5 * time.Second,
		HistorySize:    120,
		Sampler:        sampler.System(),
		Restarter:      mitigate.NewExecRestarter(),
		Mitigation:     mitigate.DefaultConfig(),
	}
}

// Guard wires the monitor, classifier, event bus and mitigation executor
// together for embedding in a host application.
type Guard struct {
	monitor  *monitor.Monitor
	bus      *eventbus.Bus
	executor *mitigate.Executor
}

// New builds a Guard from the given options. Zero option fields fall back
// to defaults.
func New(opts Options) (*Guard, error) {
	def := DefaultOptions()
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = def.Thresholds
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = def.SampleInterval
	}
	if opts.ThrottleWindow <= 0 {
		opts.ThrottleWindow = def.ThrottleWindow
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = def.HistorySize
	}
	if opts.Sampler == nil {
		opts.Sampler = def.Sampler
	}

	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}

	bus := eventbus.New()
	executor := mitigate.NewExecutor(opts.Mitigation, opts.Restarter)

	classifier, err := pressure.NewClassifier(opts.Thresholds, opts.ThrottleWindow, bus, executor)
	if err != nil {
		return nil, err
	}

	mon, err := monitor.New(monitor.Config{
		Interval:    opts.SampleInterval,
		HistorySize: opts.HistorySize,
	}, opts.Sampler)
	if err != nil {
		return nil, err
	}
	mon.AddListener(classifier.OnSample)

	return &Guard{
		monitor:  mon,
		bus:      bus,
		executor: executor,
	}, nil
}

// Start begins sampling. Returns an error if already started.
func (g *Guard) Start(ctx context.Context) error {
	if err := g.monitor.Start(ctx); err != nil {
		return errors.New().Wrap(errors.ErrInitFailed, err)
	}

	return nil
}

// Stop halts sampling and waits for dispatched mitigation tasks to finish.
// In-flight tasks run to completion; a half-trimmed cache is worse than a
// late one.
func (g *Guard) Stop() {
	g.monitor.Stop()
	g.executor.Wait()
}

// RegisterTarget adds an evictable cache or storage to be trimmed under
// pressure.
func (g *Guard) RegisterTarget(t CleanupTarget) {
	g.executor.Register(t)
}

// Subscribe registers an observer for pressure events and returns its
// unsubscribe closure.
func (g *Guard) Subscribe(fn func(Event)) func() {
	return g.bus.Subscribe(fn)
}

// AddListener registers a raw sample listener on the monitor.
func (g *Guard) AddListener(fn func(Sample)) ListenerHandle {
	return g.monitor.AddListener(fn)
}

// RemoveListener drops a raw sample listener.
func (g *Guard) RemoveListener(h ListenerHandle) {
	g.monitor.RemoveListener(h)
}

// History returns the bounded sample window and high-water mark.
func (g *Guard) History() ([]Sample, uint64) {
	return g.monitor.History()
}

// Stats summarizes the current history window.
func (g *Guard) Stats() HistoryStats {
	return g.monitor.Stats()
}
