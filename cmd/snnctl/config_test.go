package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run_config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunRequestFromConfig(t *testing.T) {
	path := writeConfig(t, `{
		"model": "brunel+",
		"neurons": 5000,
		"steps": 300,
		"seed": 42,
		"dt": 0.0001,
		"delay": 12,
		"connectivity": 0.05,
		"devices": 2,
		"workers": 4,
		"memory": "64MiB",
		"sync_every": 3,
		"out": "raster.txt"
	}`)

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.Model != "brunel+" || req.Neurons != 5000 || req.Steps != 300 || req.Seed != 42 {
		t.Fatalf("unexpected base fields: %+v", req)
	}
	if req.DT != float32(0.0001) || req.Delay != 12 || req.Connectivity != float32(0.05) {
		t.Fatalf("unexpected dynamics fields: %+v", req)
	}
	if req.Devices != 2 || req.Workers != 4 || req.SyncEvery != 3 {
		t.Fatalf("unexpected device fields: %+v", req)
	}
	if req.MemoryBytes != 64<<20 {
		t.Fatalf("expected 64MiB, got %d", req.MemoryBytes)
	}
	if req.SpikeFile != "raster.txt" {
		t.Fatalf("unexpected spike file: %q", req.SpikeFile)
	}
}

func TestLoadRunRequestFromConfigNumericMemory(t *testing.T) {
	req, err := loadRunRequestFromConfig(writeConfig(t, `{"memory": 2048}`))
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.MemoryBytes != 2048 {
		t.Fatalf("expected 2048 bytes, got %d", req.MemoryBytes)
	}
}

func TestLoadRunRequestFromConfigErrors(t *testing.T) {
	if _, err := loadRunRequestFromConfig(writeConfig(t, `{"memory": "plenty"}`)); err == nil {
		t.Fatal("expected invalid memory error")
	}
	if _, err := loadRunRequestFromConfig(writeConfig(t, `{"memory": -1}`)); err == nil {
		t.Fatal("expected negative memory error")
	}
	if _, err := loadRunRequestFromConfig(writeConfig(t, `not json`)); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := loadOrDefaultRunRequest(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestLoadOrDefaultRunRequestEmptyPath(t *testing.T) {
	req, err := loadOrDefaultRunRequest("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if req.Model != "" || req.Neurons != 0 || req.MemoryBytes != 0 {
		t.Fatalf("expected zero request, got %+v", req)
	}
}

func TestOverrideFromFlagsOnlyAppliesSetFlags(t *testing.T) {
	req, err := loadRunRequestFromConfig(writeConfig(t, `{"model":"vogels","neurons":400,"steps":90}`))
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	values := map[string]any{
		"model":      "brunel",
		"neurons":    1000,
		"steps":      25,
		"seed":       uint64(9),
		"dt":         0.0002,
		"p":          0.2,
		"mem":        "1KiB",
		"sync-every": 4,
	}
	set := map[string]bool{"steps": true, "seed": true, "dt": true, "p": true, "mem": true, "sync-every": true}
	if err := overrideFromFlags(&req, set, values); err != nil {
		t.Fatalf("override: %v", err)
	}
	if req.Model != "vogels" || req.Neurons != 400 {
		t.Fatalf("unset flags should keep config values: %+v", req)
	}
	if req.Steps != 25 || req.Seed != 9 || req.DT != float32(0.0002) || req.Connectivity != float32(0.2) {
		t.Fatalf("set flags should override config: %+v", req)
	}
	if req.MemoryBytes != 1024 || req.SyncEvery != 4 {
		t.Fatalf("unexpected memory/sync override: %+v", req)
	}
}
