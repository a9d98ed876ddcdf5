package report

// FiringStats accumulates per-step spike counts of a run.
type FiringStats struct {
	Neurons int
	DT      float32
	Counts  []int
	total   int64
}

func NewFiringStats(neurons int, dt float32) *FiringStats {
	return &FiringStats{Neurons: neurons, DT: dt}
}

func (s *FiringStats) Add(spikes int) {
	s.Counts = append(s.Counts, spikes)
	s.total += int64(spikes)
}

func (s *FiringStats) Steps() int { return len(s.Counts) }

func (s *FiringStats) Total() int64 { return s.total }

// FiringRatio is the average fraction of neurons that spike per step.
func (s *FiringStats) FiringRatio() float64 {
	if len(s.Counts) == 0 || s.Neurons == 0 {
		return 0
	}
	return float64(s.total) / float64(len(s.Counts)) / float64(s.Neurons)
}

// MeanRate is the average firing rate per neuron in Hz.
func (s *FiringStats) MeanRate() float64 {
	if s.DT <= 0 {
		return 0
	}
	return s.FiringRatio() / float64(s.DT)
}

// Peak returns the step with the most spikes and its count.
func (s *FiringStats) Peak() (step, spikes int) {
	step = -1
	for i, c := range s.Counts {
		if step < 0 || c > spikes {
			step, spikes = i, c
		}
	}
	return step, spikes
}

func (s *FiringStats) Summary() Summary {
	peakStep, peakSpikes := s.Peak()
	return Summary{
		Neurons:     s.Neurons,
		Steps:       len(s.Counts),
		DT:          s.DT,
		Spikes:      s.total,
		FiringRatio: s.FiringRatio(),
		MeanRateHz:  s.MeanRate(),
		PeakStep:    peakStep,
		PeakSpikes:  peakSpikes,
	}
}
