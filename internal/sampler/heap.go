package sampler

import (
	"math"
	"runtime"
	"runtime/debug"
	"time"
)

// Heap returns a sampler that watches the process's own heap. Useful for
// hosts that care about their footprint rather than system-wide usage.
func Heap() Func {
	return func() (Sample, error) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		s := Sample{
			UsedBytes:  ms.Alloc,
			TotalBytes: ms.Sys,
			TakenAt:    time.Now(),
		}

		// The soft memory limit doubles as the exhaustion bound when set
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			s.LimitBytes = uint64(limit)
		}

		return s, nil
	}
}
