package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	snnapi "snnsim/pkg/snnsim"
)

func loadRunRequestFromConfig(path string) (snnapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snnapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return snnapi.RunRequest{}, err
	}

	var req snnapi.RunRequest
	if v, ok := asString(raw["model"]); ok {
		req.Model = v
	}
	if v, ok := asInt(raw["neurons"]); ok {
		req.Neurons = v
	}
	if v, ok := asInt(raw["steps"]); ok {
		req.Steps = v
	}
	if v, ok := asUint64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asFloat64(raw["dt"]); ok {
		req.DT = float32(v)
	}
	if v, ok := asInt(raw["delay"]); ok {
		req.Delay = v
	}
	if v, ok := asFloat64(raw["connectivity"]); ok {
		req.Connectivity = float32(v)
	}
	if v, ok := asInt(raw["devices"]); ok {
		req.Devices = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := raw["memory"]; ok {
		bytes, err := parseMemory(v)
		if err != nil {
			return snnapi.RunRequest{}, err
		}
		req.MemoryBytes = bytes
	}
	if v, ok := asInt(raw["sync_every"]); ok {
		req.SyncEvery = v
	}
	if v, ok := asString(raw["out"]); ok {
		req.SpikeFile = v
	}
	return req, nil
}

// parseMemory accepts a byte count or a humanized size such as "512MiB".
func parseMemory(v any) (uint64, error) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, nil
		}
		n, err := humanize.ParseBytes(x)
		if err != nil {
			return 0, fmt.Errorf("memory %q: %w", x, err)
		}
		return n, nil
	case float64:
		if x < 0 {
			return 0, fmt.Errorf("memory %v out of range", x)
		}
		return uint64(x), nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("memory %d out of range", x)
		}
		return uint64(x), nil
	default:
		return 0, fmt.Errorf("memory: unsupported value %v", v)
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case int:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case float64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(req *snnapi.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "model":
			req.Model = v.(string)
		case "neurons":
			req.Neurons = v.(int)
		case "steps":
			req.Steps = v.(int)
		case "seed":
			req.Seed = v.(uint64)
		case "dt":
			req.DT = float32(v.(float64))
		case "delay":
			req.Delay = v.(int)
		case "p":
			req.Connectivity = float32(v.(float64))
		case "devices":
			req.Devices = v.(int)
		case "workers":
			req.Workers = v.(int)
		case "mem":
			bytes, err := parseMemory(v)
			if err != nil {
				return err
			}
			req.MemoryBytes = bytes
		case "sync-every":
			req.SyncEvery = v.(int)
		}
	}
	return nil
}

func loadOrDefaultRunRequest(configPath string) (snnapi.RunRequest, error) {
	if configPath == "" {
		return snnapi.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return snnapi.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
