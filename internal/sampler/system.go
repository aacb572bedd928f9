package sampler

import (
	"time"

	"codeberg.org/voss/memguard/internal/errors"
	"github.com/shirou/gopsutil/v4/mem"
)

// System returns a sampler backed by host virtual memory statistics.
func System() Func {
	errFactory := errors.New()

	return func() (Sample, error) {
		v, err := mem.VirtualMemory()
		if err != nil {
			return Sample{}, errFactory.Wrap(errors.ErrUnavailable, err)
		}

		return Sample{
			UsedBytes:  v.Used,
			TotalBytes: v.Total,
			LimitBytes: v.Total,
			TakenAt:    time.Now(),
		}, nil
	}
}
