// Package snnsim is the public entry point for running spiking network
// simulations and inspecting past runs.
package snnsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"snnsim/internal/device"
	"snnsim/internal/engine"
	"snnsim/internal/models"
	"snnsim/internal/report"
	"snnsim/internal/storage"
)

const (
	defaultDBPath  = "snnsim.db"
	defaultModel   = "brunel"
	defaultNeurons = 1000
	defaultSteps   = 1000
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind string
	DBPath    string
	// ArtifactsDir, when set, receives a directory of JSON and CSV files
	// per run.
	ArtifactsDir string
	Logger       *slog.Logger
}

type Client struct {
	store        storage.Store
	artifactsDir string
	logger       *slog.Logger

	initOnce sync.Once
	initErr  error
}

type RunRequest struct {
	Model        string
	Neurons      int
	Steps        int
	Seed         uint64
	DT           float32
	Delay        int
	Connectivity float32
	Devices      int
	Workers      int
	// MemoryBytes caps the memory of each device; zero means unlimited.
	MemoryBytes uint64
	SyncEvery   int
	// SpikeFile, when set, receives the spike raster.
	SpikeFile string
	// Progress is called after every step.
	Progress func(done, total int)
}

type RunSummary struct {
	RunID        string
	Info         engine.Info
	Steps        int
	Spikes       int64
	FiringRatio  float64
	MeanRateHz   float64
	SpikeFile    string
	ArtifactsDir string
	Duration     time.Duration
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Model        string
	Neurons      int
	Synapses     int64
	Steps        int
	Seed         uint64
	Devices      int
	Spikes       int64
	FiringRatio  float64
	MeanRateHz   float64
	WallDuration string
	SpikeFile    string
}

type RunDetail struct {
	RunItem
	DT          float32
	Delay       int
	Workers     int
	SpikeCounts []int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:        store,
		artifactsDir: opts.ArtifactsDir,
		logger:       logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Models lists the registered model names.
func (c *Client) Models() []string {
	return models.List()
}

func (c *Client) build(ctx context.Context, req RunRequest) (engine.Simulator, error) {
	var devices []device.Device
	if req.Devices > 1 {
		devices = device.Split(device.Device{
			Name:        "host",
			Workers:     req.Workers,
			MemoryBytes: req.MemoryBytes * uint64(req.Devices),
		}, req.Devices)
	} else {
		devices = []device.Device{{Name: "host", Workers: req.Workers, MemoryBytes: req.MemoryBytes}}
	}
	return models.Build(ctx, req.Model, models.Options{
		Neurons:      req.Neurons,
		Connectivity: req.Connectivity,
		DT:           req.DT,
		Delay:        req.Delay,
		Seed:         req.Seed,
		Devices:      devices,
		SyncEvery:    req.SyncEvery,
		Logger:       c.logger,
	})
}

func applyRunDefaults(req RunRequest) (RunRequest, error) {
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.Neurons <= 0 {
		req.Neurons = defaultNeurons
	}
	if req.Steps <= 0 {
		req.Steps = defaultSteps
	}
	if req.Devices <= 0 {
		req.Devices = 1
	}
	if req.Workers <= 0 {
		req.Workers = runtime.GOMAXPROCS(0)
	}
	if req.Devices > req.Workers {
		return req, fmt.Errorf("devices=%d exceeds workers=%d", req.Devices, req.Workers)
	}
	if req.DT < 0 {
		return req, fmt.Errorf("dt must be > 0: %w", engine.ErrInvalidDT)
	}
	if req.Delay < 0 {
		return req, fmt.Errorf("delay must be >= 1: %w", engine.ErrInvalidDelay)
	}
	return req, nil
}

// Describe builds the network a request would run and reports its shape
// without stepping it.
func (c *Client) Describe(ctx context.Context, req RunRequest) (engine.Info, error) {
	req, err := applyRunDefaults(req)
	if err != nil {
		return engine.Info{}, err
	}
	sim, err := c.build(ctx, req)
	if err != nil {
		return engine.Info{}, err
	}
	defer sim.Close()
	return sim.Info(), nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req, err := applyRunDefaults(req)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	started := time.Now()
	sim, err := c.build(ctx, req)
	if err != nil {
		return RunSummary{}, err
	}
	defer sim.Close()
	info := sim.Info()
	c.logger.Info("simulation ready", "info", info.String())

	var raster *report.SpikeWriter
	if req.SpikeFile != "" {
		raster, err = report.CreateSpikeFile(req.SpikeFile, sim.NumNeurons())
		if err != nil {
			return RunSummary{}, err
		}
		defer raster.Close()
	}

	firing := report.NewFiringStats(sim.NumNeurons(), info.DT)
	var ids []int
	for step := 0; step < req.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return RunSummary{}, fmt.Errorf("run interrupted at step %d: %w", step, err)
		}
		ids = sim.StepSpikes(ids)
		firing.Add(len(ids))
		if raster != nil {
			if err := raster.WriteStep(ids); err != nil {
				return RunSummary{}, err
			}
		}
		if req.Progress != nil {
			req.Progress(step+1, req.Steps)
		}
	}
	if raster != nil {
		if err := raster.Close(); err != nil {
			return RunSummary{}, err
		}
	}
	duration := time.Since(started)

	runID := storage.NewRunID()
	record := storage.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		Model:           req.Model,
		Neurons:         info.Neurons,
		Synapses:        info.Synapses,
		Steps:           req.Steps,
		Seed:            req.Seed,
		DT:              info.DT,
		Delay:           info.Delay,
		Devices:         req.Devices,
		Workers:         req.Workers,
		Spikes:          firing.Total(),
		FiringRatio:     firing.FiringRatio(),
		MeanRateHz:      firing.MeanRate(),
		SpikeFile:       req.SpikeFile,
		CreatedAt:       time.Now().UTC(),
		WallDuration:    duration.Round(time.Millisecond).String(),
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveSpikeCounts(ctx, runID, firing.Counts); err != nil {
		return RunSummary{}, fmt.Errorf("save spike counts: %w", err)
	}

	summary := RunSummary{
		RunID:       runID,
		Info:        info,
		Steps:       req.Steps,
		Spikes:      firing.Total(),
		FiringRatio: firing.FiringRatio(),
		MeanRateHz:  firing.MeanRate(),
		SpikeFile:   req.SpikeFile,
		Duration:    duration,
	}
	if c.artifactsDir != "" {
		dir, err := report.WriteRunArtifacts(c.artifactsDir, report.RunArtifacts{
			Config: report.RunConfig{
				RunID:        runID,
				Model:        req.Model,
				Neurons:      info.Neurons,
				Steps:        req.Steps,
				Seed:         req.Seed,
				DT:           info.DT,
				Delay:        info.Delay,
				Connectivity: req.Connectivity,
				Devices:      req.Devices,
				Workers:      req.Workers,
				SyncEvery:    req.SyncEvery,
			},
			Summary:     firing.Summary(),
			SpikeCounts: firing.Counts,
		})
		if err != nil {
			return RunSummary{}, fmt.Errorf("write artifacts: %w", err)
		}
		summary.ArtifactsDir = dir
	}
	return summary, nil
}

func (c *Client) Runs(ctx context.Context, limit int) ([]RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, runItem(run))
	}
	return items, nil
}

// Show returns a stored run. An empty runID selects the latest run.
func (c *Client) Show(ctx context.Context, runID string) (RunDetail, error) {
	if err := c.Init(ctx); err != nil {
		return RunDetail{}, err
	}
	if runID == "" {
		runs, err := c.store.ListRuns(ctx, 1)
		if err != nil {
			return RunDetail{}, err
		}
		if len(runs) == 0 {
			return RunDetail{}, fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
		}
		runID = runs[0].ID
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		return RunDetail{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	counts, _, err := c.store.GetSpikeCounts(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{
		RunItem:     runItem(run),
		DT:          run.DT,
		Delay:       run.Delay,
		Workers:     run.Workers,
		SpikeCounts: counts,
	}, nil
}

func runItem(run storage.RunRecord) RunItem {
	return RunItem{
		RunID:        run.ID,
		CreatedAtUTC: run.CreatedAt.UTC().Format(time.RFC3339),
		Model:        run.Model,
		Neurons:      run.Neurons,
		Synapses:     run.Synapses,
		Steps:        run.Steps,
		Seed:         run.Seed,
		Devices:      run.Devices,
		Spikes:       run.Spikes,
		FiringRatio:  run.FiringRatio,
		MeanRateHz:   run.MeanRateHz,
		WallDuration: run.WallDuration,
		SpikeFile:    run.SpikeFile,
	}
}
