// Package models holds the neuron models shipped with the simulator and a
// registry that builds a ready-to-run simulation from a model name.
package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"snnsim/internal/device"
	"snnsim/internal/engine"
	"snnsim/internal/layout"
	"snnsim/internal/multidev"
)

var (
	ErrModelExists   = errors.New("model already registered")
	ErrModelNotFound = errors.New("model not found")
)

// Options configures a simulation built by a Factory. Zero values select the
// model's defaults.
type Options struct {
	Neurons int
	// Connectivity overrides the connection probability of every rule of
	// the model's default layout.
	Connectivity float32
	DT           float32
	Delay        int
	Seed         uint64
	// Devices lists the devices to run on. None means the host; more than
	// one splits the network across them.
	Devices []device.Device
	// SyncEvery is the multi-device exchange interval in steps. Zero means
	// every step.
	SyncEvery int
	Logger    *slog.Logger
}

type Factory func(ctx context.Context, opts Options) (engine.Simulator, error)

var modelRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func init() {
	initializeBuiltInModels()
}

func initializeBuiltInModels() {
	MustRegister("synth", func(ctx context.Context, opts Options) (engine.Simulator, error) {
		l, err := layout.Homogeneous(opts.Neurons, connectivity(opts, 0.1))
		if err != nil {
			return nil, err
		}
		return simulate(ctx, &Synth{P: 0.01}, l, opts, 1e-4, 1)
	})
	MustRegister("brunel", func(ctx context.Context, opts Options) (engine.Simulator, error) {
		l, err := brunelLayout(opts)
		if err != nil {
			return nil, err
		}
		return simulate(ctx, NewBrunel(opts.Neurons), l, opts, 1e-4, 15)
	})
	MustRegister("brunel+", func(ctx context.Context, opts Options) (engine.Simulator, error) {
		l, err := brunelLayout(opts)
		if err != nil {
			return nil, err
		}
		return simulate(ctx, NewBrunelPlus(opts.Neurons), l, opts, 1e-4, 15)
	})
	MustRegister("vogels", func(ctx context.Context, opts Options) (engine.Simulator, error) {
		l, err := layout.Homogeneous(opts.Neurons, connectivity(opts, 0.02))
		if err != nil {
			return nil, err
		}
		return simulate(ctx, NewVogelsAbbott(opts.Neurons), l, opts, 1e-4, 8)
	})
}

// brunelLayout is two equal populations, Poisson inputs then LIF neurons,
// both projecting into the second.
func brunelLayout(opts Options) (*layout.Layout, error) {
	p := connectivity(opts, 0.1)
	half := opts.Neurons / 2
	return layout.New(
		[]int{half, opts.Neurons - half},
		[]layout.Connection{{Src: 0, Dst: 1, P: p}, {Src: 1, Dst: 1, P: p}},
	)
}

func connectivity(opts Options, fallback float32) float32 {
	if opts.Connectivity > 0 {
		return opts.Connectivity
	}
	return fallback
}

func simulate[M engine.Model](ctx context.Context, m M, l *layout.Layout, opts Options, dt float32, delay int) (engine.Simulator, error) {
	if opts.DT > 0 {
		dt = opts.DT
	}
	if opts.Delay > 0 {
		delay = opts.Delay
	}
	if len(opts.Devices) > 1 {
		syncEvery := opts.SyncEvery
		if syncEvery <= 0 {
			syncEvery = 1
		}
		mu, err := multidev.New(ctx, m, l, opts.Devices, multidev.Config{
			DT:        dt,
			Delay:     delay,
			Seed:      opts.Seed,
			SyncEvery: syncEvery,
			Logger:    opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		return mu, nil
	}

	dev := device.Host()
	if len(opts.Devices) == 1 {
		dev = opts.Devices[0]
	}
	e, err := engine.New(ctx, m, l, engine.Config{
		DT:     dt,
		Delay:  delay,
		Seed:   opts.Seed,
		Device: dev,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func Register(name string, f Factory) error {
	if name == "" {
		return errors.New("model name is required")
	}
	if f == nil {
		return errors.New("model factory is required")
	}

	modelRegistry.mu.Lock()
	defer modelRegistry.mu.Unlock()

	if _, exists := modelRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrModelExists, name)
	}
	modelRegistry.m[name] = f
	return nil
}

func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Factory, error) {
	modelRegistry.mu.RLock()
	f, ok := modelRegistry.m[name]
	modelRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return f, nil
}

func List() []string {
	modelRegistry.mu.RLock()
	defer modelRegistry.mu.RUnlock()

	names := make([]string, 0, len(modelRegistry.m))
	for name := range modelRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build looks up name and runs its factory.
func Build(ctx context.Context, name string, opts Options) (engine.Simulator, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	sim, err := f(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return sim, nil
}

func resetRegistryForTests() {
	modelRegistry.mu.Lock()
	modelRegistry.m = make(map[string]Factory)
	modelRegistry.mu.Unlock()
	initializeBuiltInModels()
}
