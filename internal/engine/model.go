package engine

import (
	"snnsim/internal/history"
	"snnsim/internal/random"
	"snnsim/internal/soa"
)

// Model supplies the neuron and synapse equations the engine advances. Every
// hook is a kernel over a range of lanes so the engine dispatches once per
// range or per spiking source, never once per element.
type Model interface {
	Name() string
	NeuronSchema() *soa.Schema
	SynapseSchema() *soa.Schema

	// InitNeurons sets the initial state of neurons [k.Lo, k.Hi).
	InitNeurons(k *NeuronKernel)
	// InitSynapses sets the initial state of the outgoing synapses of k.Src.
	// k.Dsts holds every destination, including off-device ones.
	InitSynapses(k *SynapseKernel)
	// UpdateNeurons advances neurons [k.Lo, k.Hi) by one step and sets
	// k.Spiked[i] for every neuron that fired.
	UpdateNeurons(k *NeuronKernel)
	// Deliver applies a spike of k.Src to k.Dsts. It may write the
	// destination neurons and the synapse slots it is given, nothing else.
	// Destinations sharing a neuron are combined by the model's own
	// associative update, typically a sum.
	Deliver(k *SynapseKernel)
}

// Plastic is implemented by models whose synapses learn.
type Plastic interface {
	// UpdateSynapses updates synapses of a source neuron that spiked within
	// the history window. k.Ages holds, per synapse, the step it was last
	// updated; the engine stamps them after the call. Synapses towards
	// another engine's neurons are updated in a separate call at
	// synchronization, with k.Neurons nil.
	UpdateSynapses(k *PlasticityKernel)
}

// NeuronKernel addresses a contiguous range of local neurons.
type NeuronKernel struct {
	Neurons *soa.Store
	Lo, Hi  int
	// First is the global id of local neuron 0.
	First int
	// Step is the step being computed, -1 during initialization.
	Step   int
	DT     float32
	Spiked []bool

	seed uint64
}

// Rand returns the stream of local neuron i for the current step. It depends
// only on the seed, the step and the neuron's global id.
func (k *NeuronKernel) Rand(i int) random.Xoroshiro128p {
	return random.NewXoroshiro128p(random.StreamSeed(k.seed, uint64(k.First+i)))
}

// SynapseKernel addresses the synapses of one source neuron towards Dsts.
type SynapseKernel struct {
	// Src is the global id of the source neuron.
	Src int
	// Slot is the index in Synapses of the synapse towards Dsts[0]; the
	// synapse towards Dsts[j] is Slot+j.
	Slot int
	// Dsts are global destination ids. The destination neuron state of dst
	// lives at index dst-DstBase of Neurons.
	Dsts     []int32
	DstBase  int
	Synapses *soa.Store
	Neurons  *soa.Store
	Step     int
	DT       float32

	seed uint64
}

// Rand returns the stream of the source neuron for the current step.
func (k *SynapseKernel) Rand() random.Xoroshiro128p {
	return random.NewXoroshiro128p(random.StreamSeed(k.seed, uint64(k.Src)))
}

// PlasticityKernel extends SynapseKernel with spike timing information.
type PlasticityKernel struct {
	SynapseKernel
	Ages    []int32
	History *history.History
	// SrcLocal is the local id of Src in History.
	SrcLocal int
	// Post holds the spikes of Dsts; destination dst is neuron dst-PostBase.
	Post     *history.History
	PostBase int
	Delay    int
}

// Elapsed is the number of steps since synapse j was last updated.
func (k *PlasticityKernel) Elapsed(j int) int {
	return k.Step - int(k.Ages[j])
}

// PreSpiked reports whether the source spiked stepsAgo steps back.
func (k *PlasticityKernel) PreSpiked(stepsAgo int) bool {
	return k.History.Spiked(k.SrcLocal, stepsAgo)
}

// PostSpiked reports whether Dsts[j] spiked stepsAgo steps back.
func (k *PlasticityKernel) PostSpiked(j, stepsAgo int) bool {
	return k.Post.Spiked(int(k.Dsts[j])-k.PostBase, stepsAgo)
}
