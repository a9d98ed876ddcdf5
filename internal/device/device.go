// Package device models the accelerators a network runs on. Devices are
// explicit configuration values passed to constructors; there is no global
// device registry.
package device

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/dustin/go-humanize"
)

var ErrResourceExhausted = errors.New("device memory exhausted")

// Device describes one execution target. Workers is the number of parallel
// lanes used for data-parallel dispatch; MemoryBytes caps the state a single
// engine may allocate on it (0 means unlimited).
type Device struct {
	ID          int
	Name        string
	Workers     int
	MemoryBytes uint64
}

// Host is a device backed by every available CPU with no memory cap.
func Host() Device {
	return Device{Name: "host", Workers: runtime.GOMAXPROCS(0)}
}

// Split divides d into k devices with disjoint worker shares and an equal
// share of its memory cap.
func Split(d Device, k int) []Device {
	if k < 1 {
		k = 1
	}
	out := make([]Device, k)
	for i := range out {
		workers := d.Workers / k
		if i < d.Workers%k {
			workers++
		}
		out[i] = Device{
			ID:          i,
			Name:        fmt.Sprintf("%s/%d", d.Name, i),
			Workers:     max(workers, 1),
			MemoryBytes: d.MemoryBytes / uint64(k),
		}
	}
	return out
}

func (d Device) String() string {
	mem := "unlimited"
	if d.MemoryBytes > 0 {
		mem = humanize.IBytes(d.MemoryBytes)
	}
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("device%d", d.ID)
	}
	return fmt.Sprintf("%s (workers=%d, memory=%s)", name, d.Workers, mem)
}

// Budget tracks allocations against a device's memory cap.
type Budget struct {
	mu    sync.Mutex
	limit uint64
	used  uint64
}

func NewBudget(d Device) *Budget {
	return &Budget{limit: d.MemoryBytes}
}

// Reserve accounts bytes for what. It fails without side effects when the cap
// would be exceeded.
func (b *Budget) Reserve(bytes uint64, what string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && b.used+bytes > b.limit {
		return fmt.Errorf("%w: %s needs %s, %s of %s available",
			ErrResourceExhausted, what,
			humanize.IBytes(bytes), humanize.IBytes(b.limit-b.used), humanize.IBytes(b.limit))
	}
	b.used += bytes
	return nil
}

func (b *Budget) Used() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
