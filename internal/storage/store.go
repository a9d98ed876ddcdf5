package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists simulation run records and their per-step spike counts.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveSpikeCounts(ctx context.Context, runID string, counts []int) error
	GetSpikeCounts(ctx context.Context, runID string) ([]int, bool, error)
	Reset(ctx context.Context) error
}

type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// RunRecord describes one completed simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Neurons      int       `json:"neurons"`
	Synapses     int64     `json:"synapses"`
	Steps        int       `json:"steps"`
	Seed         uint64    `json:"seed"`
	DT           float32   `json:"dt"`
	Delay        int       `json:"delay"`
	Devices      int       `json:"devices"`
	Workers      int       `json:"workers"`
	Spikes       int64     `json:"spikes"`
	FiringRatio  float64   `json:"firing_ratio"`
	MeanRateHz   float64   `json:"mean_rate_hz"`
	SpikeFile    string    `json:"spike_file,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	WallDuration string    `json:"wall_duration"`
}

// NewRunID returns a fresh random run id.
func NewRunID() string {
	return uuid.NewString()
}
