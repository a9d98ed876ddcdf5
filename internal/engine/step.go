package engine

import (
	"slices"

	"snnsim/internal/numeric"
)

// advance computes one step. It runs on the device stream only.
func (e *Engine[M]) advance() {
	step := e.step
	seed := e.stepSeed(step)

	e.update(step, seed)
	e.hist.Record(step, e.spikes)
	if e.mirror != nil {
		e.recordFired(step)
	}

	if due := e.hist.Due(e.delay); len(due) > 0 {
		e.deliver(step, seed, due)
		e.hist.MarkDelivered(e.delay)
	}
	if e.plastic != nil {
		e.learn(step, seed)
	}

	e.step++
	e.simtime.Add(e.dt)
}

// update advances every neuron and collects the ascending ids of those that
// spiked.
func (e *Engine[M]) update(step int, seed uint64) {
	n := e.last - e.first
	e.pool.ForEach(n, func(c, lo, hi int) {
		clear(e.spiked[lo:hi])
		k := NeuronKernel{
			Neurons: e.neurons,
			Lo:      lo,
			Hi:      hi,
			First:   e.first,
			Step:    step,
			DT:      e.dt,
			Spiked:  e.spiked,
			seed:    seed,
		}
		e.model.UpdateNeurons(&k)

		ids := e.chunkIDs[c][:0]
		for i := lo; i < hi; i++ {
			if e.spiked[i] {
				ids = append(ids, int32(i))
			}
		}
		e.chunkIDs[c] = ids
	})

	e.spikes = e.spikes[:0]
	for c := range e.pool.Chunks(n) {
		e.spikes = append(e.spikes, e.chunkIDs[c]...)
	}
	e.spikeCount += int64(len(e.spikes))
}

// localRange is the part of nbrs that lands on neurons [lo, hi).
func localRange(nbrs []int32, lo, hi int32) (a, b int) {
	a, _ = slices.BinarySearch(nbrs, lo)
	b, _ = slices.BinarySearch(nbrs[a:], hi)
	return a, a + b
}

// deliver applies the spikes in due to their destinations. Lanes own disjoint
// destination ranges and walk due in ascending order, so every neuron sees
// its inputs in the same order whatever the lane count.
func (e *Engine[M]) deliver(step int, seed uint64, due []int32) {
	e.pool.ForEach(e.last-e.first, func(_, lo, hi int) {
		dlo, dhi := int32(e.first+lo), int32(e.first+hi)
		k := SynapseKernel{
			DstBase:  e.first,
			Synapses: e.synapses,
			Neurons:  e.neurons,
			Step:     step,
			DT:       e.dt,
			seed:     seed,
		}
		for _, id := range due {
			src := e.first + int(id)
			nbrs := e.adj.Neighbors(src)
			a, b := localRange(nbrs, dlo, dhi)
			if a == b {
				continue
			}
			k.Src = src
			k.Slot = e.adj.Slot(src) + a
			k.Dsts = nbrs[a:b]
			e.model.Deliver(&k)
		}
	})

	if !e.remote {
		return
	}
	first, last := int32(e.first), int32(e.last)
	for _, id := range due {
		src := e.first + int(id)
		nbrs := e.adj.Neighbors(src)
		if a, b := localRange(nbrs, first, last); a > 0 || b < len(nbrs) {
			e.stage(step, src, nbrs, a, b)
		}
	}
}

func (e *Engine[M]) recordFired(step int) {
	ids := make([]int32, len(e.spikes))
	for i, id := range e.spikes {
		ids[i] = int32(e.first) + id
	}
	e.fired = append(e.fired, Fired{Step: step, IDs: ids})
}

// learn runs the plasticity rule over the on-device synapses of every source
// that spiked within the history window, then stamps their ages.
func (e *Engine[M]) learn(step int, seed uint64) {
	e.active = e.hist.Active(e.active[:0])
	stamp := numeric.MustNarrow[int32](step)
	first, last := int32(e.first), int32(e.last)

	e.pool.ForEach(len(e.active), func(_, lo, hi int) {
		k := PlasticityKernel{
			SynapseKernel: SynapseKernel{
				DstBase:  e.first,
				Synapses: e.synapses,
				Neurons:  e.neurons,
				Step:     step,
				DT:       e.dt,
				seed:     seed,
			},
			History:  e.hist,
			Post:     e.hist,
			PostBase: e.first,
			Delay:    e.delay,
		}
		for _, id := range e.active[lo:hi] {
			src := e.first + int(id)
			nbrs := e.adj.Neighbors(src)
			a, b := localRange(nbrs, first, last)
			if a == b {
				continue
			}
			slot := e.adj.Slot(src) + a
			k.Src = src
			k.SrcLocal = int(id)
			k.Slot = slot
			k.Dsts = nbrs[a:b]
			k.Ages = e.ages[slot : slot+b-a]
			e.plastic.UpdateSynapses(&k)
			for j := range k.Ages {
				k.Ages[j] = stamp
			}
		}
	})
}
