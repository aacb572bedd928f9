package pressure

import (
	"sync"
	"time"

	"codeberg.org/voss/memguard/internal/errors"
	"codeberg.org/voss/memguard/internal/logger"
	"codeberg.org/voss/memguard/internal/sampler"
)

// Thresholds are the tier boundaries in mebibytes. A usage equal to a
// boundary is classified at that tier.
type Thresholds struct {
	WarningMB   float64
	CriticalMB  float64
	EmergencyMB float64
}

func (t Thresholds) Validate() error {
	if t.WarningMB <= 0 || t.WarningMB >= t.CriticalMB || t.CriticalMB >= t.EmergencyMB {
		return errors.New().WithData(errors.ErrInvalidThresholds, t)
	}

	return nil
}

// Classify maps a usage reading to the single highest tier it qualifies for.
func Classify(usedMB float64, t Thresholds) Level {
	switch {
	case usedMB >= t.EmergencyMB:
		return Emergency
	case usedMB >= t.CriticalMB:
		return Critical
	case usedMB >= t.WarningMB:
		return Warning
	default:
		return Normal
	}
}

// Event is published for every non-Normal classification that survives
// throttling. Never mutated after creation.
type Event struct {
	Level      Level
	UsedMB     float64
	ObservedAt time.Time
}

// Publisher fans events out to downstream observers.
type Publisher interface {
	Publish(Event)
}

// Actor performs the tier-appropriate mitigation.
type Actor interface {
	Execute(level Level, usedMB float64)
}

// Classifier turns raw usage samples into a throttled stream of pressure
// events. Each tier has its own cooldown so a sustained Critical condition
// is never masked by a recent Warning.
type Classifier struct {
	thresholds Thresholds
	window     time.Duration
	pub        Publisher
	actor      Actor

	mu        sync.Mutex
	lastFired [levelCount]time.Time

	now func() time.Time
}

func NewClassifier(t Thresholds, window time.Duration, pub Publisher, actor Actor) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidInterval, window)
	}

	return &Classifier{
		thresholds: t,
		window:     window,
		pub:        pub,
		actor:      actor,
		now:        time.Now,
	}, nil
}

// OnSample classifies one usage sample. Registered as a monitor listener.
func (c *Classifier) OnSample(s sampler.Sample) {
	if s.UsedBytes == 0 {
		// Sampler could not report usage; nothing to classify
		return
	}

	usedMB := s.UsedMB()
	level := Classify(usedMB, c.thresholds)
	if level == Normal {
		return
	}

	now := c.now()
	c.mu.Lock()
	if !c.lastFired[level].IsZero() && now.Sub(c.lastFired[level]) < c.window {
		c.mu.Unlock()
		logger.Debug().
			Str("level", level.String()).
			Float64("used_mb", usedMB).
			Msg("Pressure event throttled")

		return
	}
	c.lastFired[level] = now
	c.mu.Unlock()

	observedAt := s.TakenAt
	if observedAt.IsZero() {
		observedAt = now
	}

	logger.Warn().
		Str("level", level.String()).
		Float64("used_mb", usedMB).
		Float64("warning_mb", c.thresholds.WarningMB).
		Float64("critical_mb", c.thresholds.CriticalMB).
		Float64("emergency_mb", c.thresholds.EmergencyMB).
		Msg("Memory pressure detected")

	ev := Event{Level: level, UsedMB: usedMB, ObservedAt: observedAt}
	if c.pub != nil {
		c.pub.Publish(ev)
	}
	if c.actor != nil {
		c.actor.Execute(level, usedMB)
	}
}
