package monitor

import (
	"context"
	"sync"
	"time"

	"codeberg.org/voss/memguard/internal/errors"
	"codeberg.org/voss/memguard/internal/logger"
	"codeberg.org/voss/memguard/internal/sampler"
)

// Handle identifies a registered listener; used only to remove it.
type Handle int

type Config struct {
	Interval    time.Duration
	HistorySize int
}

type listener struct {
	handle Handle
	fn     func(sampler.Sample)
}

// Monitor polls a sampler on a fixed interval, keeps a bounded usage
// history with a high-water mark and fans successful samples out to
// registered listeners.
type Monitor struct {
	cfg    Config
	sample sampler.Func

	mu         sync.Mutex
	listeners  []listener
	nextHandle Handle
	history    []sampler.Sample
	highWater  uint64
	running    bool
	stop       chan struct{}
	done       chan struct{}
}

func New(cfg Config, fn sampler.Func) (*Monitor, error) {
	errFactory := errors.New()

	if fn == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "sampler must not be nil")
	}
	if cfg.Interval <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidInterval, cfg.Interval)
	}
	if cfg.HistorySize <= 0 {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "history size must be positive")
	}

	return &Monitor{
		cfg:     cfg,
		sample:  fn,
		history: make([]sampler.Sample, 0, cfg.HistorySize),
	}, nil
}

// Start launches the sampling loop. It returns an error if the monitor is
// already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New().New(errors.ErrMonitorRunning)
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.run(ctx, m.stop, m.done)

	logger.Debug().
		Dur("interval", m.cfg.Interval).
		Int("history_size", m.cfg.HistorySize).
		Msg("Memory monitor started")

	return nil
}

// Stop cancels the sampling loop and waits for it to exit. Safe to call
// more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
}

func (m *Monitor) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick performs one sampling pass: query the sampler, record the sample
// and notify listeners in registration order.
func (m *Monitor) tick() {
	s, err := m.sample()
	if err != nil {
		if sampler.Unavailable(err) {
			logger.Debug().Msg("Memory telemetry unavailable, skipping tick")
		} else {
			logger.Warn().Err(err).Msg("Memory sampler failed, skipping tick")
		}

		return
	}

	m.mu.Lock()
	m.history = append(m.history, s)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[1:]
	}
	if s.UsedBytes > m.highWater {
		m.highWater = s.UsedBytes
	}
	snapshot := make([]listener, len(m.listeners))
	copy(snapshot, m.listeners)
	m.mu.Unlock()

	// Listener changes made during a tick take effect on the next one
	for _, l := range snapshot {
		m.invoke(l, s)
	}
}

func (m *Monitor) invoke(l listener, s sampler.Sample) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Int("listener", int(l.handle)).
				Interface("panic", r).
				Msg("Listener panicked; continuing with remaining listeners")
		}
	}()

	l.fn(s)
}

// AddListener registers fn to be called once per successful sample.
func (m *Monitor) AddListener(fn func(sampler.Sample)) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextHandle++
	m.listeners = append(m.listeners, listener{handle: m.nextHandle, fn: fn})

	return m.nextHandle
}

// RemoveListener drops the listener for the given handle. Removing an
// unknown or already removed handle is a no-op.
func (m *Monitor) RemoveListener(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, l := range m.listeners {
		if l.handle == h {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// History returns a copy of the bounded sample window and the high-water
// mark of used bytes observed since the monitor was created.
func (m *Monitor) History() ([]sampler.Sample, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]sampler.Sample, len(m.history))
	copy(out, m.history)

	return out, m.highWater
}
