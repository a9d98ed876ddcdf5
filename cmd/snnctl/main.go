package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"

	"snnsim/internal/storage"
	snnapi "snnsim/pkg/snnsim"
)

const (
	defaultDBPath     = "snnsim.db"
	defaultOutPattern = "spikes-%Y%m%d-%H%M%S.txt"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "info":
		return runInfo(ctx, args[1:])
	case "models":
		return runModels(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type simFlags struct {
	model        *string
	neurons      *int
	steps        *int
	seed         *uint64
	dt           *float64
	delay        *int
	connectivity *float64
	devices      *int
	workers      *int
	memory       *string
	syncEvery    *int
}

func addSimFlags(fs *flag.FlagSet) simFlags {
	return simFlags{
		model:        fs.String("model", "brunel", "model name: brunel|brunel+|vogels|synth"),
		neurons:      fs.Int("neurons", 1000, "neuron count"),
		steps:        fs.Int("steps", 1000, "simulation steps"),
		seed:         fs.Uint64("seed", 1337, "rng seed"),
		dt:           fs.Float64("dt", 0, "time step in seconds (0 uses the model default)"),
		delay:        fs.Int("delay", 0, "synaptic delay in steps (0 uses the model default)"),
		connectivity: fs.Float64("p", 0, "connection probability override (0 uses the model default)"),
		devices:      fs.Int("devices", 1, "number of devices to split the network across"),
		workers:      fs.Int("workers", 0, "total worker lanes (0 uses GOMAXPROCS)"),
		memory:       fs.String("mem", "", "memory cap per device, e.g. 512MiB (empty means unlimited)"),
		syncEvery:    fs.Int("sync-every", 1, "multi-device spike exchange interval in steps"),
	}
}

func (f simFlags) values() map[string]any {
	return map[string]any{
		"model":      *f.model,
		"neurons":    *f.neurons,
		"steps":      *f.steps,
		"seed":       *f.seed,
		"dt":         *f.dt,
		"delay":      *f.delay,
		"p":          *f.connectivity,
		"devices":    *f.devices,
		"workers":    *f.workers,
		"mem":        *f.memory,
		"sync-every": *f.syncEvery,
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	sim := addSimFlags(fs)
	out := fs.String("out", "", "spike raster output path; \"auto\" names it from -out-pattern")
	outPattern := fs.String("out-pattern", defaultOutPattern, "strftime pattern for -out auto")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	artifactsDir := fs.String("artifacts-dir", "", "optional directory for per-run artifacts")
	logLevel := fs.String("log-level", "warn", "log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		for name := range sim.values() {
			setFlags[name] = true
		}
	}
	if err := overrideFromFlags(&req, setFlags, sim.values()); err != nil {
		return err
	}
	if *out == "auto" {
		req.SpikeFile = strftime.Format(*outPattern, time.Now())
	} else if *out != "" {
		req.SpikeFile = *out
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		return err
	}
	client, err := snnapi.New(snnapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: *artifactsDir,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	interactive := !*jsonOut && isTerminal(os.Stdout)
	if interactive {
		last := -1
		req.Progress = func(done, total int) {
			pct := 100 * done / total
			if pct != last {
				last = pct
				fmt.Printf("\r%d%% done", pct)
			}
		}
	}

	summary, err := client.Run(ctx, req)
	if interactive {
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":        summary.RunID,
			"model":         summary.Info.Model,
			"neurons":       summary.Info.Neurons,
			"synapses":      summary.Info.Synapses,
			"steps":         summary.Steps,
			"spikes":        summary.Spikes,
			"firing_ratio":  summary.FiringRatio,
			"mean_rate_hz":  summary.MeanRateHz,
			"spike_file":    summary.SpikeFile,
			"artifacts_dir": summary.ArtifactsDir,
			"duration_ms":   summary.Duration.Milliseconds(),
		})
	}

	fmt.Printf("run_id=%s model=%s neurons=%s synapses=%s steps=%d spikes=%s duration=%s\n",
		summary.RunID,
		summary.Info.Model,
		humanize.Comma(int64(summary.Info.Neurons)),
		humanize.Comma(summary.Info.Synapses),
		summary.Steps,
		humanize.Comma(summary.Spikes),
		summary.Duration.Round(time.Millisecond),
	)
	fmt.Printf("Avg. ratio of neurons firing: %.4f%% (%.2f Hz)\n", 100*summary.FiringRatio, summary.MeanRateHz)
	if summary.SpikeFile != "" {
		fmt.Printf("spikes written to %s\n", summary.SpikeFile)
	}
	if summary.ArtifactsDir != "" {
		fmt.Printf("artifacts written to %s\n", summary.ArtifactsDir)
	}
	return nil
}

func runInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	sim := addSimFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	for name := range sim.values() {
		setFlags[name] = true
	}

	var req snnapi.RunRequest
	if err := overrideFromFlags(&req, setFlags, sim.values()); err != nil {
		return err
	}
	client, err := snnapi.New(snnapi.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	info, err := client.Describe(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(info.String())
	if info.OverflowNeurons > 0 {
		fmt.Printf("overflow: %s neurons exceeded max degree, %s edges dropped\n",
			humanize.Comma(info.OverflowNeurons), humanize.Comma(info.DroppedEdges))
	}
	return nil
}

func runModels(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := snnapi.New(snnapi.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	for _, name := range client.Models() {
		fmt.Println(name)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := snnapi.New(snnapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created=%s model=%s neurons=%s steps=%d devices=%d spikes=%s ratio=%.4f%%\n",
			item.RunID,
			createdDisplay(item.CreatedAtUTC),
			item.Model,
			humanize.Comma(int64(item.Neurons)),
			item.Steps,
			item.Devices,
			humanize.Comma(item.Spikes),
			100*item.FiringRatio,
		)
	}
	return nil
}

func createdDisplay(created string) string {
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return created
	}
	return fmt.Sprintf("%q", humanize.Time(t))
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id (empty shows the latest run)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	counts := fs.Bool("counts", false, "print per-step spike counts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := snnapi.New(snnapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.Show(ctx, strings.TrimSpace(*runID))
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s\n", detail.RunID)
	fmt.Printf("created_at=%s\n", detail.CreatedAtUTC)
	fmt.Printf("model=%s neurons=%s synapses=%s\n", detail.Model, humanize.Comma(int64(detail.Neurons)), humanize.Comma(detail.Synapses))
	fmt.Printf("steps=%d dt=%g delay=%d seed=%d devices=%d workers=%d\n", detail.Steps, detail.DT, detail.Delay, detail.Seed, detail.Devices, detail.Workers)
	fmt.Printf("spikes=%s ratio=%.4f%% rate=%.2fHz wall=%s\n", humanize.Comma(detail.Spikes), 100*detail.FiringRatio, detail.MeanRateHz, detail.WallDuration)
	if detail.SpikeFile != "" {
		fmt.Printf("spike_file=%s\n", detail.SpikeFile)
	}
	if *counts {
		for step, c := range detail.SpikeCounts {
			fmt.Printf("%d,%d\n", step, c)
		}
	}
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	if err := store.Init(ctx); err != nil {
		return err
	}
	if err := store.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: snnctl <run|info|models|runs|show|reset> [flags]", msg)
}
