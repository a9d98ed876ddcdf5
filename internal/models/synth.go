package models

import (
	"snnsim/internal/engine"
	"snnsim/internal/random"
	"snnsim/internal/soa"
)

var synthNeurons soa.Schema

var synthInput = soa.Int32(&synthNeurons, "input")

var noSynapses soa.Schema

// Synth fires every neuron independently with probability P per step and
// counts the spikes each neuron receives. It carries no synapse state, which
// makes it the baseline for measuring the engine itself.
type Synth struct {
	P float32
}

func (m *Synth) Name() string { return "synth" }
func (m *Synth) NeuronSchema() *soa.Schema { return &synthNeurons }
func (m *Synth) SynapseSchema() *soa.Schema { return &noSynapses }
func (m *Synth) InitNeurons(*engine.NeuronKernel) {}
func (m *Synth) InitSynapses(*engine.SynapseKernel) {}

func (m *Synth) UpdateNeurons(k *engine.NeuronKernel) {
	for i := k.Lo; i < k.Hi; i++ {
		g := k.Rand(i)
		k.Spiked[i] = random.UniformLeftInc(&g) < m.P
	}
}

func (m *Synth) Deliver(k *engine.SynapseKernel) {
	input := soa.Col(k.Neurons, synthInput)
	for _, dst := range k.Dsts {
		input[int(dst)-k.DstBase]++
	}
}
