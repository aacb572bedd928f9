package monitor

// Stats summarizes the current history window in mebibytes.
type Stats struct {
	Samples     int
	MinMB       float64
	MaxMB       float64
	AverageMB   float64
	HighWaterMB float64
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		Samples:     len(m.history),
		HighWaterMB: float64(m.highWater) / (1 << 20),
	}
	if len(m.history) == 0 {
		return st
	}

	sum := 0.0
	for i, s := range m.history {
		used := s.UsedMB()
		if i == 0 || used < st.MinMB {
			st.MinMB = used
		}
		if used > st.MaxMB {
			st.MaxMB = used
		}
		sum += used
	}
	st.AverageMB = sum / float64(len(m.history))

	return st
}
