package engine

import (
	"snnsim/internal/numeric"
	"snnsim/internal/soa"
)

// Staged is a spike whose destinations include neurons owned by another
// engine. It carries its own copy of everything a receiver needs: the
// off-device destinations and the state of the synapses that reach them as
// it was when the spike came due.
type Staged struct {
	Step int
	Src  int
	// Dsts are the off-device destinations, ascending.
	Dsts []int32
	// Synapses holds the synapse towards Dsts[j] at row Slot+j. Writes made
	// through it by Deliver are discarded.
	Synapses *soa.Store
	Slot     int
}

// Fired lists the global ids that spiked on an engine at Step.
type Fired struct {
	Step int
	IDs  []int32
}

// Outbox is everything an engine staged for the other engines of its network
// since the previous TakeOutbox.
type Outbox struct {
	// Spikes are in step, then source order.
	Spikes []Staged
	// Fired holds one entry per step, and only for plastic models, which need
	// the post-synaptic spikes of off-device targets.
	Fired []Fired
}

// stage copies the off-device part of src's outgoing synapses into the
// outbox. a and b bound the on-device destinations in src's neighbor row.
func (e *Engine[M]) stage(step, src int, nbrs []int32, a, b int) {
	if e.outSyn == nil {
		e.outSyn = soa.New(e.model.SynapseSchema(), 0)
	}
	slot := e.adj.Slot(src)
	at := e.outSyn.Len()
	remote := a + len(nbrs) - b
	e.outSyn.Resize(at + remote)
	soa.CopyRows(e.outSyn, at, e.synapses, slot, a)
	soa.CopyRows(e.outSyn, at+a, e.synapses, slot+b, len(nbrs)-b)

	dsts := make([]int32, 0, remote)
	dsts = append(dsts, nbrs[:a]...)
	dsts = append(dsts, nbrs[b:]...)
	e.outbox = append(e.outbox, Staged{
		Step:     step,
		Src:      src,
		Dsts:     dsts,
		Synapses: e.outSyn,
		Slot:     at,
	})
}

// Receive applies a spike staged by another engine of the same network to
// the neurons e owns. It reads nothing but s. The engine must be
// synchronized.
func (e *Engine[M]) Receive(s Staged) {
	a, b := localRange(s.Dsts, int32(e.first), int32(e.last))
	if a == b {
		return
	}
	k := SynapseKernel{
		Src:      s.Src,
		Slot:     s.Slot + a,
		Dsts:     s.Dsts[a:b],
		DstBase:  e.first,
		Synapses: s.Synapses,
		Neurons:  e.neurons,
		Step:     s.Step,
		DT:       e.dt,
		seed:     e.stepSeed(s.Step),
	}
	e.model.Deliver(&k)
}

// RecordRemote records the spikes other engines fired at step, as global
// ids in ascending order, so that plasticity on synapses leaving e can see
// their targets. Engines whose model does not learn ignore it.
func (e *Engine[M]) RecordRemote(step int, ids []int32) {
	if e.mirror == nil {
		return
	}
	e.mirror.Record(step, ids)
}

// LearnRemote runs the plasticity rule over the synapses from e's neurons to
// neurons of other engines, using the spikes passed to RecordRemote, and
// stamps their ages. It covers the last computed step and runs at most once
// per step. The engine must be synchronized.
func (e *Engine[M]) LearnRemote() {
	if e.mirror == nil || e.step == 0 || e.remoteLearned == e.step {
		return
	}
	e.remoteLearned = e.step
	step := e.step - 1
	seed := e.stepSeed(step)
	stamp := numeric.MustNarrow[int32](step)

	e.active = e.hist.Active(e.active[:0])
	k := PlasticityKernel{
		SynapseKernel: SynapseKernel{
			DstBase:  0,
			Synapses: e.synapses,
			Step:     step,
			DT:       e.dt,
			seed:     seed,
		},
		History: e.hist,
		Post:    e.mirror,
		Delay:   e.delay,
	}
	first, last := int32(e.first), int32(e.last)
	for _, id := range e.active {
		src := e.first + int(id)
		nbrs := e.adj.Neighbors(src)
		a, b := localRange(nbrs, first, last)
		slot := e.adj.Slot(src)
		k.Src = src
		k.SrcLocal = int(id)
		for _, seg := range [2][2]int{{0, a}, {b, len(nbrs)}} {
			if seg[0] == seg[1] {
				continue
			}
			k.Slot = slot + seg[0]
			k.Dsts = nbrs[seg[0]:seg[1]]
			k.Ages = e.ages[k.Slot : k.Slot+len(k.Dsts)]
			e.plastic.UpdateSynapses(&k)
			for j := range k.Ages {
				k.Ages[j] = stamp
			}
		}
	}
}
