package pressure

import (
	"testing"
	"time"

	"codeberg.org/voss/memguard/internal/errors"
	"codeberg.org/voss/memguard/internal/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testThresholds = Thresholds{WarningMB: 60, CriticalMB: 100, EmergencyMB: 140}

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(ev Event) {
	p.events = append(p.events, ev)
}

type recordingActor struct {
	calls []Level
}

func (a *recordingActor) Execute(level Level, _ float64) {
	a.calls = append(a.calls, level)
}

func sampleMB(mb uint64) sampler.Sample {
	return sampler.Sample{
		UsedBytes:  mb << 20,
		TotalBytes: 1 << 34,
		TakenAt:    time.Unix(1700000000, 0),
	}
}

func newTestClassifier(t *testing.T, window time.Duration) (*Classifier, *recordingPublisher, *recordingActor, *time.Time) {
	t.Helper()

	pub := &recordingPublisher{}
	actor := &recordingActor{}
	c, err := NewClassifier(testThresholds, window, pub, actor)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	return c, pub, actor, &now
}

func TestClassify(t *testing.T) {
	tests := []struct {
		usedMB float64
		want   Level
	}{
		{0, Normal},
		{45, Normal},
		{59.99, Normal},
		{60, Warning},
		{65, Warning},
		{99.99, Warning},
		{100, Critical},
		{110, Critical},
		{139.99, Critical},
		{140, Emergency},
		{150, Emergency},
		{10000, Emergency},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.usedMB, testThresholds), "usedMB=%v", tt.usedMB)
	}
}

func TestClassifyMonotonic(t *testing.T) {
	prev := Normal
	for mb := 0.0; mb <= 200; mb += 0.5 {
		level := Classify(mb, testThresholds)
		assert.GreaterOrEqual(t, level, prev, "classification regressed at %v MB", mb)
		prev = level
	}
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, testThresholds.Validate())

	bad := []Thresholds{
		{WarningMB: 0, CriticalMB: 100, EmergencyMB: 140},
		{WarningMB: 100, CriticalMB: 100, EmergencyMB: 140},
		{WarningMB: 60, CriticalMB: 140, EmergencyMB: 100},
		{WarningMB: -1, CriticalMB: 100, EmergencyMB: 140},
	}
	for _, th := range bad {
		err := th.Validate()
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidThresholds))
	}
}

func TestNormalNeverFires(t *testing.T) {
	c, pub, actor, _ := newTestClassifier(t, 5*time.Second)

	c.OnSample(sampleMB(45))

	assert.Empty(t, pub.events)
	assert.Empty(t, actor.calls)
}

func TestSampleWithoutUsageIgnored(t *testing.T) {
	c, pub, actor, _ := newTestClassifier(t, 5*time.Second)

	c.OnSample(sampler.Sample{TotalBytes: 1 << 30, TakenAt: time.Now()})

	assert.Empty(t, pub.events)
	assert.Empty(t, actor.calls)
}

func TestWarningFiresOnceWithinWindow(t *testing.T) {
	c, pub, actor, now := newTestClassifier(t, 5*time.Second)

	c.OnSample(sampleMB(65))
	*now = now.Add(time.Second)
	c.OnSample(sampleMB(70))

	require.Len(t, pub.events, 1)
	assert.Equal(t, Warning, pub.events[0].Level)
	assert.InDelta(t, 65, pub.events[0].UsedMB, 0.01)
	assert.Equal(t, []Level{Warning}, actor.calls)
}

func TestSameTierFiresAgainAfterWindow(t *testing.T) {
	c, pub, actor, now := newTestClassifier(t, 5*time.Second)

	c.OnSample(sampleMB(65))
	*now = now.Add(5 * time.Second)
	c.OnSample(sampleMB(70))

	assert.Len(t, pub.events, 2)
	assert.Len(t, actor.calls, 2)
}

func TestPerTierThrottleIndependence(t *testing.T) {
	c, pub, actor, now := newTestClassifier(t, 5*time.Second)

	c.OnSample(sampleMB(65))
	*now = now.Add(time.Second)
	c.OnSample(sampleMB(110))
	*now = now.Add(time.Second)
	c.OnSample(sampleMB(150))

	require.Len(t, pub.events, 3)
	assert.Equal(t, Warning, pub.events[0].Level)
	assert.Equal(t, Critical, pub.events[1].Level)
	assert.Equal(t, Emergency, pub.events[2].Level)
	assert.Equal(t, []Level{Warning, Critical, Emergency}, actor.calls)
}

func TestSingleHighestTierPerSample(t *testing.T) {
	c, pub, actor, _ := newTestClassifier(t, 5*time.Second)

	// A sample far above every threshold reports Emergency only
	c.OnSample(sampleMB(500))

	require.Len(t, pub.events, 1)
	assert.Equal(t, Emergency, pub.events[0].Level)
	assert.Equal(t, []Level{Emergency}, actor.calls)
}

func TestObservedAtFromSample(t *testing.T) {
	c, pub, _, _ := newTestClassifier(t, 5*time.Second)

	taken := time.Unix(1700000000, 0)
	c.OnSample(sampleMB(65))

	require.Len(t, pub.events, 1)
	assert.Equal(t, taken, pub.events[0].ObservedAt)
}

func TestNewClassifierRejectsBadInput(t *testing.T) {
	_, err := NewClassifier(Thresholds{}, 5*time.Second, nil, nil)
	require.Error(t, err)

	_, err = NewClassifier(testThresholds, 0, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "warning", Warning.String())
	assert.Equal(t, "critical", Critical.String())
	assert.Equal(t, "emergency", Emergency.String())
	assert.Equal(t, "unknown", Level(42).String())
}
