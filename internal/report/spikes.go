// Package report writes simulation output: the per-step spike raster, firing
// statistics and run artifacts.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SpikeWriter writes a spike raster: a header line with the neuron count,
// then one line per step listing the ids that spiked, comma separated.
// Silent steps produce an empty line.
type SpikeWriter struct {
	w      *bufio.Writer
	closer io.Closer
	buf    []byte
	steps  int
}

func NewSpikeWriter(w io.Writer, neurons int) (*SpikeWriter, error) {
	sw := &SpikeWriter{w: bufio.NewWriterSize(w, 1<<16)}
	if _, err := fmt.Fprintf(sw.w, "%d\n", neurons); err != nil {
		return nil, fmt.Errorf("write spike header: %w", err)
	}
	return sw, nil
}

// CreateSpikeFile creates path and writes the raster header to it.
func CreateSpikeFile(path string, neurons int) (*SpikeWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	sw, err := NewSpikeWriter(file, neurons)
	if err != nil {
		file.Close()
		return nil, err
	}
	sw.closer = file
	return sw, nil
}

// WriteStep appends one step. ids are written in the given order.
func (sw *SpikeWriter) WriteStep(ids []int) error {
	b := sw.buf[:0]
	for i, id := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(id), 10)
	}
	b = append(b, '\n')
	sw.buf = b
	sw.steps++
	if _, err := sw.w.Write(b); err != nil {
		return fmt.Errorf("write step %d: %w", sw.steps-1, err)
	}
	return nil
}

func (sw *SpikeWriter) Steps() int { return sw.steps }

func (sw *SpikeWriter) Flush() error {
	return sw.w.Flush()
}

// Close flushes the raster and closes the underlying file, if the writer
// owns one.
func (sw *SpikeWriter) Close() error {
	err := sw.w.Flush()
	if sw.closer != nil {
		if cerr := sw.closer.Close(); err == nil {
			err = cerr
		}
		sw.closer = nil
	}
	return err
}

// ReadSpikes parses a raster written by SpikeWriter.
func ReadSpikes(r io.Reader) (neurons int, steps [][]int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<26)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, nil, err
		}
		return 0, nil, fmt.Errorf("spike raster is empty")
	}
	neurons, err = strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, nil, fmt.Errorf("spike raster header: %w", err)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			steps = append(steps, []int{})
			continue
		}
		fields := strings.Split(line, ",")
		ids := make([]int, len(fields))
		for i, field := range fields {
			id, err := strconv.Atoi(field)
			if err != nil {
				return 0, nil, fmt.Errorf("spike raster step %d: %w", len(steps), err)
			}
			if id < 0 || id >= neurons {
				return 0, nil, fmt.Errorf("spike raster step %d: id %d outside [0,%d)", len(steps), id, neurons)
			}
			ids[i] = id
		}
		steps = append(steps, ids)
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, err
	}
	return neurons, steps, nil
}
