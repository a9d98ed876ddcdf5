// Package engine advances a network of spiking neurons on one device: neuron
// update, spike recording, delayed delivery and plasticity, once per step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"

	"snnsim/internal/adjacency"
	"snnsim/internal/device"
	"snnsim/internal/history"
	"snnsim/internal/layout"
	"snnsim/internal/numeric"
	"snnsim/internal/random"
	"snnsim/internal/soa"
)

var (
	ErrInvalidDT    = errors.New("invalid time step")
	ErrInvalidDelay = errors.New("invalid delay")
	ErrInvalidRange = errors.New("invalid neuron range")
)

// dynamicsSalt separates the per-step streams from the adjacency streams,
// which are seeded from the bare seed.
const dynamicsSalt = 0x5851f42d4c957f2d

type Config struct {
	DT    float32
	Delay int
	// First and Last select the neurons this engine owns. Last <= 0 means
	// the end of the layout.
	First  int
	Last   int
	Seed   uint64
	Device device.Device
	Logger *slog.Logger
}

type Info struct {
	Model           string
	Neurons         int
	Synapses        int64
	MaxDegree       int
	DT              float32
	Delay           int
	First           int
	Last            int
	Device          string
	MemoryBytes     uint64
	OverflowNeurons int64
	DroppedEdges    int64
}

func (i Info) String() string {
	return fmt.Sprintf("%s: %s neurons [%d, %d), %s synapses, max degree %d, dt=%g delay=%d, %s on %s",
		i.Model,
		humanize.Comma(int64(i.Neurons)), i.First, i.Last,
		humanize.Comma(i.Synapses), i.MaxDegree, i.DT, i.Delay,
		humanize.IBytes(i.MemoryBytes), i.Device)
}

// Simulator is the model-independent surface of a running simulation.
type Simulator interface {
	Step()
	StepSpikes(dst []int) []int
	Synchronize()
	NumNeurons() int
	StepIndex() int
	SpikeCount() int64
	Info() Info
	Close()
}

type Engine[M Model] struct {
	model   M
	plastic Plastic
	layout  *layout.Layout
	dt      float32
	delay   int
	first   int
	last    int
	seed    uint64
	dev     device.Device
	logger  *slog.Logger

	pool   *device.Pool
	stream *device.Stream
	budget *device.Budget

	adj      *adjacency.List
	neurons  *soa.Store
	synapses *soa.Store
	ages     []int32
	hist     *history.History

	spiked   []bool
	chunkIDs [][]int32
	spikes   []int32
	active   []int32
	remote   bool

	outbox []Staged
	outSyn *soa.Store
	fired  []Fired
	// mirror records the spikes of other engines for plasticity on
	// outgoing cross-engine synapses; nil unless the model learns and the
	// engine owns part of the network.
	mirror        *history.History
	remoteLearned int

	step       int
	simtime    numeric.KahanSum[float32]
	spikeCount int64
}

var _ Simulator = (*Engine[Model])(nil)

// New validates cfg, reserves the device memory the network needs, samples
// the adjacency of neurons [cfg.First, cfg.Last) and initializes their state.
func New[M Model](ctx context.Context, m M, l *layout.Layout, cfg Config) (*Engine[M], error) {
	if l == nil {
		return nil, fmt.Errorf("new engine: nil layout")
	}
	if !(cfg.DT > 0) || math.IsInf(float64(cfg.DT), 0) {
		return nil, fmt.Errorf("new engine: dt=%g: %w", cfg.DT, ErrInvalidDT)
	}
	if cfg.Delay < 1 {
		return nil, fmt.Errorf("new engine: delay=%d: %w", cfg.Delay, ErrInvalidDelay)
	}
	first, last := cfg.First, cfg.Last
	if last <= 0 {
		last = l.Size()
	}
	if first < 0 || first >= last || last > l.Size() {
		return nil, fmt.Errorf("new engine: [%d, %d) of %d neurons: %w", first, last, l.Size(), ErrInvalidRange)
	}
	dev := cfg.Device
	if dev.Workers <= 0 {
		dev.Workers = device.Host().Workers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine[M]{
		model:  m,
		layout: l,
		dt:     cfg.DT,
		delay:  cfg.Delay,
		first:  first,
		last:   last,
		seed:   cfg.Seed,
		dev:    dev,
		logger: logger,
		pool:   device.NewPool(dev.Workers),
		budget: device.NewBudget(dev),
		remote: first > 0 || last < l.Size(),
	}
	if p, ok := any(m).(Plastic); ok {
		e.plastic = p
	}

	n := last - first
	width := l.MaxDegree()
	slots := uint64(n) * uint64(width)
	reservations := []struct {
		bytes uint64
		what  string
	}{
		{adjacency.RequiredBytes(n, width), "adjacency list"},
		{slots * 4, "synapse ages"},
		{slots * m.SynapseSchema().RowBytes(), "synapse state"},
		{uint64(n) * m.NeuronSchema().RowBytes(), "neuron state"},
		{history.RequiredBytes(n, cfg.Delay), "spike history"},
	}
	if e.plastic != nil && e.remote {
		reservations = append(reservations, struct {
			bytes uint64
			what  string
		}{history.RequiredBytes(l.Size(), cfg.Delay), "remote spike history"})
	}
	for _, r := range reservations {
		if err := e.budget.Reserve(r.bytes, r.what); err != nil {
			return nil, fmt.Errorf("new engine on %s: %w", dev, err)
		}
	}

	adj, err := adjacency.Generate(ctx, l, adjacency.Options{
		Seed:   cfg.Seed,
		First:  first,
		Last:   last,
		Pool:   e.pool,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	e.adj = adj

	hist, err := history.New(n, cfg.Delay)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	e.hist = hist
	if e.plastic != nil && e.remote {
		if e.mirror, err = history.New(l.Size(), cfg.Delay); err != nil {
			return nil, fmt.Errorf("new engine: %w", err)
		}
	}

	e.neurons = soa.New(m.NeuronSchema(), n)
	e.synapses = soa.New(m.SynapseSchema(), n*width)
	e.ages = make([]int32, n*width)
	e.spiked = make([]bool, n)
	e.chunkIDs = make([][]int32, e.pool.Workers())
	e.initState()

	e.stream = device.NewStream(64)
	logger.Debug("engine ready",
		"model", m.Name(),
		"neurons", n,
		"synapses", adj.NumEdges(),
		"device", dev.String(),
		"memory", humanize.IBytes(e.budget.Used()))
	return e, nil
}

// NewHomogeneous builds an engine over n neurons connected with probability p.
func NewHomogeneous[M Model](ctx context.Context, m M, n int, p float32, cfg Config) (*Engine[M], error) {
	l, err := layout.Homogeneous(n, p)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	return New(ctx, m, l, cfg)
}

func (e *Engine[M]) stepSeed(step int) uint64 {
	return random.StreamSeed(e.seed^dynamicsSalt, uint64(step+1))
}

func (e *Engine[M]) initState() {
	seed := e.stepSeed(-1)
	e.pool.ForEach(e.last-e.first, func(_, lo, hi int) {
		nk := NeuronKernel{
			Neurons: e.neurons,
			Lo:      lo,
			Hi:      hi,
			First:   e.first,
			Step:    -1,
			DT:      e.dt,
			Spiked:  e.spiked,
			seed:    seed,
		}
		e.model.InitNeurons(&nk)

		sk := SynapseKernel{
			DstBase:  e.first,
			Synapses: e.synapses,
			Neurons:  e.neurons,
			Step:     -1,
			DT:       e.dt,
			seed:     seed,
		}
		for i := lo; i < hi; i++ {
			src := e.first + i
			sk.Src = src
			sk.Slot = e.adj.Slot(src)
			sk.Dsts = e.adj.Neighbors(src)
			if len(sk.Dsts) > 0 {
				e.model.InitSynapses(&sk)
			}
		}
	})
}

// Reset restores the initial neuron and synapse state and rewinds the clock.
// The adjacency list is kept.
func (e *Engine[M]) Reset() {
	e.stream.Launch(func() {
		e.initState()
		e.hist.Reset()
		clear(e.ages)
		clear(e.spiked)
		e.spikes = e.spikes[:0]
		if e.mirror != nil {
			e.mirror.Reset()
		}
		e.outbox, e.outSyn, e.fired = nil, nil, nil
		e.remoteLearned = 0
		e.step = 0
		e.simtime = numeric.KahanSum[float32]{}
		e.spikeCount = 0
	})
	e.stream.Synchronize()
}

// Step enqueues one simulation step and returns without waiting for it.
func (e *Engine[M]) Step() {
	e.stream.Launch(e.advance)
}

// StepSpikes runs one step, waits for it and returns the global ids of the
// neurons that spiked, ascending. The result reuses dst's storage.
func (e *Engine[M]) StepSpikes(dst []int) []int {
	e.Step()
	e.Synchronize()
	dst = dst[:0]
	for _, id := range e.spikes {
		dst = append(dst, e.first+int(id))
	}
	return dst
}

// Synchronize blocks until every step issued so far has completed. The
// accessors below read device state without synchronizing.
func (e *Engine[M]) Synchronize() {
	e.stream.Synchronize()
}

func (e *Engine[M]) Close() {
	e.stream.Close()
}

func (e *Engine[M]) Model() M { return e.model }
func (e *Engine[M]) NumNeurons() int { return e.last - e.first }
func (e *Engine[M]) Range() (first, last int) { return e.first, e.last }
func (e *Engine[M]) StepIndex() int { return e.step }
func (e *Engine[M]) SimTime() float32 { return e.simtime.Sum() }
func (e *Engine[M]) SpikeCount() int64 { return e.spikeCount }
func (e *Engine[M]) Adjacency() *adjacency.List { return e.adj }
func (e *Engine[M]) Neurons() *soa.Store { return e.neurons }
func (e *Engine[M]) Synapses() *soa.Store { return e.synapses }
func (e *Engine[M]) Ages() []int32 { return e.ages }
func (e *Engine[M]) History() *history.History { return e.hist }
func (e *Engine[M]) DT() float32 { return e.dt }
func (e *Engine[M]) Delay() int { return e.delay }
func (e *Engine[M]) LastSpikes() []int32 { return e.spikes }

// MeanFiringRate is the average number of spikes per neuron per second of
// simulated time.
func (e *Engine[M]) MeanFiringRate() float64 {
	t := float64(e.simtime.Sum())
	if e.step == 0 || t <= 0 {
		return 0
	}
	return float64(e.spikeCount) / float64(e.last-e.first) / t
}

func (e *Engine[M]) Info() Info {
	overflowNeurons, dropped := e.adj.Overflow()
	return Info{
		Model:           e.model.Name(),
		Neurons:         e.last - e.first,
		Synapses:        e.adj.NumEdges(),
		MaxDegree:       e.adj.Width(),
		DT:              e.dt,
		Delay:           e.delay,
		First:           e.first,
		Last:            e.last,
		Device:          e.dev.String(),
		MemoryBytes:     e.budget.Used(),
		OverflowNeurons: overflowNeurons,
		DroppedEdges:    dropped,
	}
}

// TakeOutbox returns what was staged for other engines since the last call
// and empties the outbox. The engine must be synchronized.
func (e *Engine[M]) TakeOutbox() Outbox {
	out := Outbox{Spikes: e.outbox, Fired: e.fired}
	e.outbox, e.outSyn, e.fired = nil, nil, nil
	return out
}
