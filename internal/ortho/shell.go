package ortho

import (
	"encoding/binary"
	"sort"
)

// ShellCache memoizes the shell-order layout for a given dims tuple:
// the enumeration of every coordinate in the Cartesian product of the
// axes, sorted by (coordinate sum ascending, lexicographic ascending).
//
// Per spec.md §9's design note against process-global mutable state, a
// ShellCache is never a package-level singleton: callers (the driver,
// tests) own one explicitly and thread it through every Ortho operation
// that needs shell order.
type ShellCache struct {
	layouts map[string]*shellLayout
}

// NewShellCache returns an empty cache.
func NewShellCache() *ShellCache {
	return &ShellCache{layouts: make(map[string]*shellLayout)}
}

type shellLayout struct {
	dims []uint32
	// locations[slot] is the coordinate tuple occupying that shell-order slot.
	locations [][]uint32
	// index maps an encoded coordinate tuple to its shell-order slot.
	index map[string]int
}

func (c *ShellCache) layoutFor(dims []uint32) *shellLayout {
	key := encodeCoord(dims)

	if l, ok := c.layouts[key]; ok {
		return l
	}

	l := buildShellLayout(dims)
	c.layouts[key] = l

	return l
}

func buildShellLayout(dims []uint32) *shellLayout {
	coords := cartesianProduct(dims)

	sort.Slice(coords, func(i, j int) bool {
		si, sj := sum(coords[i]), sum(coords[j])
		if si != sj {
			return si < sj
		}

		return lexLess(coords[i], coords[j])
	})

	index := make(map[string]int, len(coords))
	for i, c := range coords {
		index[encodeCoord(c)] = i
	}

	return &shellLayout{
		dims:      append([]uint32(nil), dims...),
		locations: coords,
		index:     index,
	}
}

func cartesianProduct(dims []uint32) [][]uint32 {
	total := 1
	for _, d := range dims {
		total *= int(d)
	}

	coords := make([][]uint32, 0, total)
	coord := make([]uint32, len(dims))

	var recurse func(axis int)
	recurse = func(axis int) {
		if axis == len(dims) {
			coords = append(coords, append([]uint32(nil), coord...))

			return
		}

		for v := range dims[axis] {
			coord[axis] = v
			recurse(axis + 1)
		}
	}

	recurse(0)

	return coords
}

func sum(coord []uint32) uint64 {
	var s uint64
	for _, v := range coord {
		s += uint64(v)
	}

	return s
}

func lexLess(a, b []uint32) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return false
}

func encodeCoord(coord []uint32) string {
	buf := make([]byte, 4*len(coord))
	for i, v := range coord {
		binary.BigEndian.PutUint32(buf[i*4:], v)
	}

	return string(buf)
}
