package snnsim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"snnsim/internal/device"
	"snnsim/internal/report"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	client, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRunPersistsRecordAndRaster(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	client := newClient(t, Options{StoreKind: "memory", ArtifactsDir: filepath.Join(dir, "artifacts")})

	spikeFile := filepath.Join(dir, "spikes.txt")
	var progress []int
	summary, err := client.Run(ctx, RunRequest{
		Model:     "synth",
		Neurons:   300,
		Steps:     40,
		Seed:      5,
		Workers:   2,
		SpikeFile: spikeFile,
		Progress:  func(done, _ int) { progress = append(progress, done) },
	})
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 300, summary.Info.Neurons)
	require.Len(t, progress, 40)
	require.Equal(t, 40, progress[39])

	file, err := os.Open(spikeFile)
	require.NoError(t, err)
	defer file.Close()
	neurons, steps, err := report.ReadSpikes(file)
	require.NoError(t, err)
	require.Equal(t, 300, neurons)
	require.Len(t, steps, 40)
	var total int64
	for _, ids := range steps {
		total += int64(len(ids))
	}
	require.Equal(t, summary.Spikes, total)

	detail, err := client.Show(ctx, summary.RunID)
	require.NoError(t, err)
	require.Equal(t, "synth", detail.Model)
	require.Len(t, detail.SpikeCounts, 40)
	require.Equal(t, spikeFile, detail.SpikeFile)

	latest, err := client.Show(ctx, "")
	require.NoError(t, err)
	require.Equal(t, summary.RunID, latest.RunID)

	cfg, ok, err := report.ReadRunConfig(filepath.Join(dir, "artifacts"), summary.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "synth", cfg.Model)
	require.Equal(t, summary.ArtifactsDir, filepath.Join(dir, "artifacts", summary.RunID))
}

func TestRunIsReproducibleAcrossDevices(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{StoreKind: "memory"})

	req := RunRequest{Model: "synth", Neurons: 400, Steps: 30, Seed: 9, Workers: 4}
	single, err := client.Run(ctx, req)
	require.NoError(t, err)

	req.Devices = 2
	split, err := client.Run(ctx, req)
	require.NoError(t, err)
	require.Equal(t, single.Spikes, split.Spikes)
	require.Equal(t, "2 devices", split.Info.Device)

	a, err := client.Show(ctx, single.RunID)
	require.NoError(t, err)
	b, err := client.Show(ctx, split.RunID)
	require.NoError(t, err)
	require.Equal(t, a.SpikeCounts, b.SpikeCounts)

	runs, err := client.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, split.RunID, runs[0].RunID)
}

func TestRunWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	client := newClient(t, Options{StoreKind: "sqlite", DBPath: dbPath})
	summary, err := client.Run(ctx, RunRequest{Model: "vogels", Neurons: 200, Steps: 10, Workers: 2})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	reopened := newClient(t, Options{StoreKind: "sqlite", DBPath: dbPath})
	runs, err := reopened.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, summary.RunID, runs[0].RunID)
	require.Equal(t, "vogels", runs[0].Model)
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{StoreKind: "memory"})

	_, err := client.Run(ctx, RunRequest{Model: "missing", Neurons: 10, Steps: 1})
	require.Error(t, err)

	_, err = client.Run(ctx, RunRequest{Model: "synth", Devices: 4, Workers: 2})
	require.Error(t, err)

	_, err = client.Run(ctx, RunRequest{Model: "synth", Neurons: 1000, Steps: 1, Workers: 1, MemoryBytes: 1024})
	require.ErrorIs(t, err, device.ErrResourceExhausted)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newClient(t, Options{StoreKind: "memory"})

	_, err := client.Run(ctx, RunRequest{
		Model:    "synth",
		Neurons:  100,
		Steps:    100,
		Workers:  1,
		Progress: func(done, _ int) {
			if done == 5 {
				cancel()
			}
		},
	})
	require.ErrorIs(t, err, context.Canceled)

	runs, err := client.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestShowMissingRun(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{StoreKind: "memory"})

	_, err := client.Show(ctx, "")
	require.True(t, errors.Is(err, ErrRunNotFound))
	_, err = client.Show(ctx, "nope")
	require.True(t, errors.Is(err, ErrRunNotFound))
}

func TestDescribe(t *testing.T) {
	client := newClient(t, Options{StoreKind: "memory"})
	info, err := client.Describe(context.Background(), RunRequest{Model: "brunel", Neurons: 400, Workers: 2})
	require.NoError(t, err)
	require.Equal(t, "brunel", info.Model)
	require.Equal(t, 400, info.Neurons)
	require.Equal(t, 15, info.Delay)
	require.Contains(t, client.Models(), "brunel+")
}
