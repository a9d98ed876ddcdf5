package models

import (
	"github.com/chewxy/math32"

	"snnsim/internal/engine"
	"snnsim/internal/random"
	"snnsim/internal/soa"
)

// Conductance-based LIF parameters, in seconds and volts. Conductances are
// relative to the leak conductance.
const (
	vogelsTau    = 0.02
	vogelsTauE   = 0.005
	vogelsTauI   = 0.01
	vogelsVRest  = -0.06
	vogelsVThr   = -0.05
	vogelsVReset = -0.06
	vogelsEE     = 0
	vogelsEI     = -0.08
	vogelsTRef   = 0.005
	vogelsWE     = 0.162
	vogelsWI     = 1.809
)

var vogelsNeurons soa.Schema

var (
	vogelsV   = soa.Float32(&vogelsNeurons, "v")
	vogelsGE  = soa.Float32(&vogelsNeurons, "ge")
	vogelsGI  = soa.Float32(&vogelsNeurons, "gi")
	vogelsRef = soa.Int32(&vogelsNeurons, "ref")
)

// VogelsAbbott is a conductance-based LIF network with exponentially decaying
// excitatory and inhibitory conductances. Neurons below Excitatory are
// excitatory.
type VogelsAbbott struct {
	Excitatory int
}

func NewVogelsAbbott(n int) *VogelsAbbott {
	return &VogelsAbbott{Excitatory: n * 4 / 5}
}

func (m *VogelsAbbott) Name() string { return "vogels" }
func (m *VogelsAbbott) NeuronSchema() *soa.Schema { return &vogelsNeurons }
func (m *VogelsAbbott) SynapseSchema() *soa.Schema { return &noSynapses }
func (m *VogelsAbbott) InitSynapses(*engine.SynapseKernel) {}

func (m *VogelsAbbott) InitNeurons(k *engine.NeuronKernel) {
	v := soa.Col(k.Neurons, vogelsV)
	ge := soa.Col(k.Neurons, vogelsGE)
	gi := soa.Col(k.Neurons, vogelsGI)
	ref := soa.Col(k.Neurons, vogelsRef)
	for i := k.Lo; i < k.Hi; i++ {
		g := k.Rand(i)
		v[i] = vogelsVReset + (vogelsVThr-vogelsVReset)*random.UniformLeftInc(&g)
		ge[i] = max(0, random.Normal(&g, 0.4, 0.15))
		gi[i] = max(0, random.Normal(&g, 2, 1.2))
		ref[i] = 0
	}
}

func (m *VogelsAbbott) UpdateNeurons(k *engine.NeuronKernel) {
	v := soa.Col(k.Neurons, vogelsV)
	ge := soa.Col(k.Neurons, vogelsGE)
	gi := soa.Col(k.Neurons, vogelsGI)
	ref := soa.Col(k.Neurons, vogelsRef)
	refSteps := int32(math32.Round(vogelsTRef / k.DT))
	decayE := math32.Exp(-k.DT / vogelsTauE)
	decayI := math32.Exp(-k.DT / vogelsTauI)
	for i := k.Lo; i < k.Hi; i++ {
		if ref[i] > 0 {
			ref[i]--
		} else {
			dv := (vogelsVRest - v[i]) + ge[i]*(vogelsEE-v[i]) + gi[i]*(vogelsEI-v[i])
			v[i] += k.DT * dv / vogelsTau
		}
		ge[i] *= decayE
		gi[i] *= decayI
		if v[i] >= vogelsVThr {
			v[i] = vogelsVReset
			ref[i] = refSteps
			k.Spiked[i] = true
		}
	}
}

func (m *VogelsAbbott) Deliver(k *engine.SynapseKernel) {
	if k.Src < m.Excitatory {
		ge := soa.Col(k.Neurons, vogelsGE)
		for _, dst := range k.Dsts {
			ge[int(dst)-k.DstBase] += vogelsWE
		}
		return
	}
	gi := soa.Col(k.Neurons, vogelsGI)
	for _, dst := range k.Dsts {
		gi[int(dst)-k.DstBase] += vogelsWI
	}
}
