package sampler

import (
	"time"

	"codeberg.org/voss/memguard/internal/errors"
)

const bytesPerMB = 1 << 20

// Sample is a point-in-time memory usage reading. A zero field means the
// backing telemetry source could not report that value.
type Sample struct {
	UsedBytes  uint64
	TotalBytes uint64
	LimitBytes uint64
	TakenAt    time.Time
}

// UsedMB returns the used memory in mebibytes.
func (s Sample) UsedMB() float64 {
	return float64(s.UsedBytes) / bytesPerMB
}

// Func produces a memory usage sample. An error carrying
// errors.ErrUnavailable marks transient telemetry loss; the caller skips
// the reading without escalating.
type Func func() (Sample, error)

// Unavailable reports whether the error marks transient telemetry loss.
func Unavailable(err error) bool {
	return errors.HasCode(err, errors.ErrUnavailable)
}
