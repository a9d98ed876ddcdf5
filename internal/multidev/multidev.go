// Package multidev runs one network across several devices. Each device owns
// a contiguous range of neurons and an engine for it; spikes whose targets
// live on another device are exchanged at explicit synchronization points.
package multidev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"snnsim/internal/device"
	"snnsim/internal/engine"
	"snnsim/internal/layout"
)

var ErrNoDevices = errors.New("no devices")

type Config struct {
	DT    float32
	Delay int
	Seed  uint64
	// SyncEvery triggers Sync after that many steps. Zero leaves
	// synchronization to the caller.
	SyncEvery int
	Logger    *slog.Logger
}

type Range struct {
	First int
	Last  int
}

func (r Range) Len() int { return r.Last - r.First }

// Partition splits the neurons of l into at most k contiguous ranges with
// roughly equal expected synapse counts. Every range holds at least one
// neuron.
func Partition(l *layout.Layout, k int) []Range {
	n := l.Size()
	k = min(max(k, 1), n)
	total := l.ExpectedSynapses()
	if total <= 0 {
		ranges := make([]Range, k)
		for c := range ranges {
			lo, hi := device.ChunkRange(n, k, c)
			ranges[c] = Range{First: lo, Last: hi}
		}
		return ranges
	}

	ranges := make([]Range, 0, k)
	first := 0
	acc := 0.0
	for i := 0; i < n && len(ranges) < k-1; i++ {
		acc += l.ExpectedDegree(i)
		after := k - len(ranges) - 1
		target := total * float64(len(ranges)+1) / float64(k)
		if acc >= target || n-(i+1) == after {
			ranges = append(ranges, Range{First: first, Last: i + 1})
			first = i + 1
		}
	}
	return append(ranges, Range{First: first, Last: n})
}

// Multi drives one engine per device over a shared layout.
//
// A spike whose destinations include neurons on another device is delivered
// locally when its delay elapses and staged, with a copy of the synapses it
// crosses, for the other devices, which receive it at the next Sync. The
// effective delay of a cross-device edge is therefore rounded up to the next
// synchronization point. Devices never read each other's state.
type Multi[M engine.Model] struct {
	engines   []*engine.Engine[M]
	ranges    []Range
	devices   []device.Device
	syncEvery int
	steps     int
	logger    *slog.Logger

	remote []int32
}

var _ engine.Simulator = (*Multi[engine.Model])(nil)

func New[M engine.Model](ctx context.Context, m M, l *layout.Layout, devices []device.Device, cfg Config) (*Multi[M], error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("new multi-device simulation: %w", ErrNoDevices)
	}
	if l == nil {
		return nil, fmt.Errorf("new multi-device simulation: nil layout")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ranges := Partition(l, len(devices))
	mu := &Multi[M]{
		ranges:    ranges,
		devices:   devices[:len(ranges)],
		syncEvery: max(cfg.SyncEvery, 0),
		logger:    logger,
	}
	for i, r := range ranges {
		e, err := engine.New(ctx, m, l, engine.Config{
			DT:     cfg.DT,
			Delay:  cfg.Delay,
			First:  r.First,
			Last:   r.Last,
			Seed:   cfg.Seed,
			Device: devices[i],
			Logger: logger.With("device", devices[i].ID),
		})
		if err != nil {
			mu.Close()
			return nil, fmt.Errorf("device %s: %w", devices[i], err)
		}
		mu.engines = append(mu.engines, e)
	}
	logger.Debug("multi-device simulation ready", "devices", len(mu.engines), "neurons", l.Size())
	return mu, nil
}

func (mu *Multi[M]) Engines() []*engine.Engine[M] { return mu.engines }
func (mu *Multi[M]) Ranges() []Range { return mu.ranges }

func (mu *Multi[M]) NumNeurons() int {
	return mu.ranges[len(mu.ranges)-1].Last
}

// Step enqueues one step on every device.
func (mu *Multi[M]) Step() {
	for _, e := range mu.engines {
		e.Step()
	}
	mu.steps++
	if mu.syncEvery > 0 && mu.steps%mu.syncEvery == 0 {
		mu.Sync()
	}
}

// Synchronize waits for every device without exchanging spikes.
func (mu *Multi[M]) Synchronize() {
	for _, e := range mu.engines {
		e.Synchronize()
	}
}

// Sync waits for every device and reconciles what crosses device
// boundaries since the previous Sync. Staged spikes are delivered in device
// then step order. For learning models every device then records the spikes
// the others fired, step by step, and updates its synapses towards them, so
// with SyncEvery 1 a run matches a single device. With longer intervals
// cross-device synapses learn once per Sync, from the window at that point.
func (mu *Multi[M]) Sync() {
	mu.Synchronize()
	boxes := make([]engine.Outbox, len(mu.engines))
	for i, e := range mu.engines {
		boxes[i] = e.TakeOutbox()
	}
	for i, box := range boxes {
		for _, s := range box.Spikes {
			for j, to := range mu.engines {
				if j != i {
					to.Receive(s)
				}
			}
		}
	}

	for k := range boxes[0].Fired {
		step := boxes[0].Fired[k].Step
		for j, to := range mu.engines {
			ids := mu.remote[:0]
			for i, box := range boxes {
				if i != j {
					ids = append(ids, box.Fired[k].IDs...)
				}
			}
			mu.remote = ids
			to.RecordRemote(step, ids)
		}
	}
	for _, e := range mu.engines {
		e.LearnRemote()
	}
}

// StepSpikes runs one step on every device and returns the global ids that
// spiked, ascending. The result reuses dst's storage.
func (mu *Multi[M]) StepSpikes(dst []int) []int {
	mu.Step()
	mu.Synchronize()
	dst = dst[:0]
	for _, e := range mu.engines {
		first, _ := e.Range()
		for _, id := range e.LastSpikes() {
			dst = append(dst, first+int(id))
		}
	}
	return dst
}

func (mu *Multi[M]) StepIndex() int { return mu.steps }

func (mu *Multi[M]) SpikeCount() int64 {
	var total int64
	for _, e := range mu.engines {
		total += e.SpikeCount()
	}
	return total
}

func (mu *Multi[M]) Info() engine.Info {
	info := mu.engines[0].Info()
	for _, e := range mu.engines[1:] {
		ei := e.Info()
		info.Synapses += ei.Synapses
		info.MemoryBytes += ei.MemoryBytes
		info.OverflowNeurons += ei.OverflowNeurons
		info.DroppedEdges += ei.DroppedEdges
		info.MaxDegree = max(info.MaxDegree, ei.MaxDegree)
	}
	info.First = 0
	info.Last = mu.NumNeurons()
	info.Neurons = info.Last
	info.Device = fmt.Sprintf("%d devices", len(mu.engines))
	return info
}

func (mu *Multi[M]) Close() {
	for _, e := range mu.engines {
		e.Close()
	}
}
