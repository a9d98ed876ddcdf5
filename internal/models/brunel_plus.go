package models

import (
	"github.com/chewxy/math32"

	"snnsim/internal/engine"
	"snnsim/internal/soa"
)

// Pair-based STDP parameters.
const (
	stdpAPlus  = 0.1 * brunelJ
	stdpAMinus = 0.12 * brunelJ
	stdpTau    = 0.02
	stdpWMax   = 2 * brunelJ
	// Weights relax towards brunelJ with this time constant.
	stdpRelax = 1.0
)

// BrunelPlus is Brunel with spike-timing-dependent plasticity on excitatory
// synapses. A synapse is potentiated when its target fires after the source
// and depressed when the source fires after the target, with exponentially
// decaying strength over the spike history window. Between updates weights
// relax towards their initial value in closed form, so synapses that go
// unvisited for many steps come out the same as if they had been updated
// every step.
type BrunelPlus struct {
	Brunel
}

func NewBrunelPlus(n int) *BrunelPlus {
	return &BrunelPlus{Brunel: *NewBrunel(n)}
}

func (m *BrunelPlus) Name() string { return "brunel+" }

func (m *BrunelPlus) UpdateSynapses(k *engine.PlasticityKernel) {
	if m.inhibitory(k.Src) {
		return
	}
	w := soa.Col(k.Synapses, brunelW)
	window := min(k.Delay, k.History.MaxHistory()-1)

	var preTrace float32
	for t := 1; t <= window; t++ {
		if k.PreSpiked(t) {
			preTrace += stdpKernel(t, k.DT)
		}
	}
	preNow := k.PreSpiked(0)

	for j := range k.Dsts {
		x := w[k.Slot+j]
		x = brunelJ + (x-brunelJ)*math32.Exp(-float32(k.Elapsed(j))*k.DT/stdpRelax)
		if k.PostSpiked(j, 0) {
			x += stdpAPlus * preTrace
		}
		if preNow {
			var postTrace float32
			for t := 1; t <= window; t++ {
				if k.PostSpiked(j, t) {
					postTrace += stdpKernel(t, k.DT)
				}
			}
			x -= stdpAMinus * postTrace
		}
		w[k.Slot+j] = min(max(x, 0), stdpWMax)
	}
}

func stdpKernel(stepsAgo int, dt float32) float32 {
	return math32.Exp(-float32(stepsAgo) * dt / stdpTau)
}
