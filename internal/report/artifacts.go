package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Summary struct {
	Neurons     int     `json:"neurons"`
	Steps       int     `json:"steps"`
	DT          float32 `json:"dt"`
	Spikes      int64   `json:"spikes"`
	FiringRatio float64 `json:"firing_ratio"`
	MeanRateHz  float64 `json:"mean_rate_hz"`
	PeakStep    int     `json:"peak_step"`
	PeakSpikes  int     `json:"peak_spikes"`
}

type RunConfig struct {
	RunID        string  `json:"run_id"`
	Model        string  `json:"model"`
	Neurons      int     `json:"neurons"`
	Steps        int     `json:"steps"`
	Seed         uint64  `json:"seed"`
	DT           float32 `json:"dt"`
	Delay        int     `json:"delay"`
	Connectivity float32 `json:"connectivity,omitempty"`
	Devices      int     `json:"devices"`
	Workers      int     `json:"workers"`
	SyncEvery    int     `json:"sync_every,omitempty"`
}

type RunArtifacts struct {
	Config      RunConfig
	Summary     Summary
	SpikeCounts []int
}

// WriteRunArtifacts writes config.json, summary.json and spike_counts.csv
// under baseDir/<run id> and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := strings.TrimSpace(artifacts.Config.RunID)
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := WriteSpikeCounts(runDir, artifacts.SpikeCounts); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadSummary(baseDir, runID string) (Summary, bool, error) {
	var summary Summary
	ok, err := readJSON(filepath.Join(baseDir, runID, "summary.json"), &summary)
	return summary, ok, err
}

func WriteSpikeCounts(runDir string, counts []int) error {
	path := filepath.Join(runDir, "spike_counts.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"step", "spikes"}); err != nil {
		return err
	}
	for i, c := range counts {
		if err := writer.Write([]string{strconv.Itoa(i), strconv.Itoa(c)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadSpikeCounts(baseDir, runID string) ([]int, bool, error) {
	path := filepath.Join(baseDir, runID, "spike_counts.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []int{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("spike counts header must have at least 2 columns")
	}

	counts := make([]int, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("spike counts row must have at least 2 columns")
		}
		c, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, false, err
		}
		counts = append(counts, c)
	}
	return counts, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}
