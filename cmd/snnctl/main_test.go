package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snnsim/internal/report"
)

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	os.Stdout = w

	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}

func TestRunRejectsMissingAndUnknownCommands(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	err := run(context.Background(), []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command: bogus") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if !strings.Contains(err.Error(), "usage: snnctl") {
		t.Fatalf("expected usage line, got %v", err)
	}
}

func TestRunCommandPrintsSummary(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"run",
			"--store", "memory",
			"--model", "synth",
			"--neurons", "200",
			"--steps", "20",
			"--seed", "5",
			"--workers", "2",
		})
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.Contains(out, "model=synth neurons=200") {
		t.Fatalf("unexpected summary: %q", out)
	}
	if !strings.Contains(out, "steps=20") {
		t.Fatalf("expected steps in summary: %q", out)
	}
	if !strings.Contains(out, "Avg. ratio of neurons firing:") {
		t.Fatalf("expected firing ratio line: %q", out)
	}
	if strings.Contains(out, "% done") {
		t.Fatalf("progress should not be printed to a pipe: %q", out)
	}
}

func TestRunCommandJSONWritesSpikeFile(t *testing.T) {
	dir := t.TempDir()
	spikes := filepath.Join(dir, "spikes.txt")
	artifacts := filepath.Join(dir, "artifacts")
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"run",
			"--store", "memory",
			"--model", "synth",
			"--neurons", "150",
			"--steps", "12",
			"--workers", "2",
			"--out", spikes,
			"--artifacts-dir", artifacts,
			"--json",
		})
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode json output %q: %v", out, err)
	}
	if payload["model"] != "synth" || payload["neurons"] != float64(150) || payload["steps"] != float64(12) {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	runID, _ := payload["run_id"].(string)
	if runID == "" {
		t.Fatalf("expected run id in payload: %+v", payload)
	}

	f, err := os.Open(spikes)
	if err != nil {
		t.Fatalf("open spike file: %v", err)
	}
	defer f.Close()
	neurons, steps, err := report.ReadSpikes(f)
	if err != nil {
		t.Fatalf("read spikes: %v", err)
	}
	if neurons != 150 || len(steps) != 12 {
		t.Fatalf("unexpected raster shape: neurons=%d steps=%d", neurons, len(steps))
	}
	total := 0
	for _, ids := range steps {
		total += len(ids)
	}
	if payload["spikes"] != float64(total) {
		t.Fatalf("summary spikes %v != raster spikes %d", payload["spikes"], total)
	}

	if _, err := os.Stat(filepath.Join(artifacts, runID, "summary.json")); err != nil {
		t.Fatalf("expected summary artifact: %v", err)
	}
}

func TestRunCommandRejectsBadMemory(t *testing.T) {
	err := run(context.Background(), []string{"run", "--model", "synth", "--mem", "lots"})
	if err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("expected memory parse error, got %v", err)
	}
}

func TestRunCommandRejectsBadLogLevel(t *testing.T) {
	err := run(context.Background(), []string{"run", "--model", "synth", "--log-level", "loud"})
	if err == nil || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestRunCommandAppliesConfigWithFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "run.json")
	data := []byte(`{"model":"synth","neurons":120,"steps":50,"workers":2}`)
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "--store", "memory", "--config", configPath, "--steps", "7"})
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.Contains(out, "neurons=120") || !strings.Contains(out, "steps=7") {
		t.Fatalf("expected config neurons and flag steps: %q", out)
	}
}

func TestSQLiteRunsShowAndReset(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snnsim.db")
	ctx := context.Background()
	for _, seed := range []string{"1", "2"} {
		if _, err := captureStdout(func() error {
			return run(ctx, []string{
				"run",
				"--db-path", dbPath,
				"--model", "synth",
				"--neurons", "100",
				"--steps", "10",
				"--seed", seed,
				"--workers", "2",
			})
		}); err != nil {
			t.Fatalf("run seed %s: %v", seed, err)
		}
	}

	out, err := captureStdout(func() error {
		return run(ctx, []string{"runs", "--db-path", dbPath, "--json"})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode runs %q: %v", out, err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(items))
	}

	out, err = captureStdout(func() error {
		return run(ctx, []string{"runs", "--db-path", dbPath})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if strings.Count(out, "run_id=") != 2 || !strings.Contains(out, "model=synth") {
		t.Fatalf("unexpected runs listing: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(ctx, []string{"show", "--db-path", dbPath, "--counts"})
	})
	if err != nil {
		t.Fatalf("show command: %v", err)
	}
	if !strings.Contains(out, "model=synth neurons=100") {
		t.Fatalf("unexpected show output: %q", out)
	}
	if !strings.Contains(out, "\n9,") {
		t.Fatalf("expected per-step counts through step 9: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(ctx, []string{"reset", "--db-path", dbPath})
	})
	if err != nil {
		t.Fatalf("reset command: %v", err)
	}
	if !strings.Contains(out, "reset store=sqlite") {
		t.Fatalf("unexpected reset output: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(ctx, []string{"runs", "--db-path", dbPath})
	})
	if err != nil {
		t.Fatalf("runs after reset: %v", err)
	}
	if !strings.Contains(out, "no runs found") {
		t.Fatalf("expected empty listing after reset: %q", out)
	}
	if err := run(ctx, []string{"show", "--db-path", dbPath}); err == nil {
		t.Fatal("expected show to fail on an empty store")
	}
}

func TestRunsRejectsNonPositiveLimit(t *testing.T) {
	err := run(context.Background(), []string{"runs", "--store", "memory", "--limit", "0"})
	if err == nil || !strings.Contains(err.Error(), "limit must be > 0") {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestInfoCommand(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"info", "--model", "synth", "--neurons", "1000", "--workers", "2"})
	})
	if err != nil {
		t.Fatalf("info command: %v", err)
	}
	if !strings.Contains(out, "synth: 1,000 neurons") {
		t.Fatalf("unexpected info output: %q", out)
	}
	if !strings.Contains(out, "synapses") {
		t.Fatalf("expected synapse count: %q", out)
	}
}

func TestModelsCommand(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"models"})
	})
	if err != nil {
		t.Fatalf("models command: %v", err)
	}
	for _, name := range []string{"brunel", "brunel+", "synth", "vogels"} {
		if !strings.Contains(out, name+"\n") {
			t.Fatalf("expected model %s in %q", name, out)
		}
	}
}
