package models

import (
	"github.com/chewxy/math32"

	"snnsim/internal/engine"
	"snnsim/internal/random"
	"snnsim/internal/soa"
)

// Leaky integrate-and-fire parameters, in seconds and volts.
const (
	brunelTau    = 0.02
	brunelVThr   = 0.02
	brunelVReset = 0.01
	brunelTRef   = 0.002
	brunelJ      = 0.0001
	brunelG      = 5
	// External drive: brunelCExt afferents firing at brunelNuExt Hz each.
	brunelCExt  = 1000
	brunelNuExt = 20
)

var brunelNeurons soa.Schema

var (
	brunelV   = soa.Float32(&brunelNeurons, "v")
	brunelRef = soa.Int32(&brunelNeurons, "ref")
)

var brunelSynapses soa.Schema

var brunelW = soa.Float32(&brunelSynapses, "w")

// Brunel is a sparsely connected network of leaky integrate-and-fire neurons
// with delta synapses. Neurons below Inputs are Poisson sources firing at
// InputRate Hz. The next Excitatory neurons are excitatory and the rest are
// inhibitory, with synapses g times stronger. Every LIF neuron also receives
// binomially distributed external input.
type Brunel struct {
	Inputs     int
	Excitatory int
	InputRate  float32
}

// NewBrunel splits n neurons into a Poisson half and a LIF half that is 80%
// excitatory.
func NewBrunel(n int) *Brunel {
	inputs := n / 2
	return &Brunel{
		Inputs:     inputs,
		Excitatory: (n - inputs) * 4 / 5,
		InputRate:  20,
	}
}

func (m *Brunel) Name() string               { return "brunel" }
func (m *Brunel) NeuronSchema() *soa.Schema  { return &brunelNeurons }
func (m *Brunel) SynapseSchema() *soa.Schema { return &brunelSynapses }

func (m *Brunel) inhibitory(id int) bool {
	return id >= m.Inputs+m.Excitatory
}

func (m *Brunel) InitNeurons(k *engine.NeuronKernel) {
	v := soa.Col(k.Neurons, brunelV)
	ref := soa.Col(k.Neurons, brunelRef)
	for i := k.Lo; i < k.Hi; i++ {
		g := k.Rand(i)
		v[i] = brunelVThr * random.UniformLeftInc(&g)
		ref[i] = 0
	}
}

func (m *Brunel) InitSynapses(k *engine.SynapseKernel) {
	w := soa.Col(k.Synapses, brunelW)
	weight := float32(brunelJ)
	if m.inhibitory(k.Src) {
		weight = -brunelG * brunelJ
	}
	for j := range k.Dsts {
		w[k.Slot+j] = weight
	}
}

func (m *Brunel) UpdateNeurons(k *engine.NeuronKernel) {
	v := soa.Col(k.Neurons, brunelV)
	ref := soa.Col(k.Neurons, brunelRef)
	refSteps := int32(math32.Round(brunelTRef / k.DT))
	decay := math32.Exp(-k.DT / brunelTau)
	for i := k.Lo; i < k.Hi; i++ {
		g := k.Rand(i)
		if k.First+i < m.Inputs {
			k.Spiked[i] = random.UniformLeftInc(&g) < m.InputRate*k.DT
			continue
		}
		if ref[i] > 0 {
			ref[i]--
			continue
		}
		ext := random.Binomial(&g, brunelCExt, brunelNuExt*k.DT)
		v[i] = v[i]*decay + brunelJ*float32(ext)
		if v[i] >= brunelVThr {
			v[i] = brunelVReset
			ref[i] = refSteps
			k.Spiked[i] = true
		}
	}
}

func (m *Brunel) Deliver(k *engine.SynapseKernel) {
	v := soa.Col(k.Neurons, brunelV)
	ref := soa.Col(k.Neurons, brunelRef)
	w := soa.Col(k.Synapses, brunelW)
	for j, dst := range k.Dsts {
		i := int(dst) - k.DstBase
		if ref[i] == 0 {
			v[i] += w[k.Slot+j]
		}
	}
}
