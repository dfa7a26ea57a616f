// Package ortho implements the Ortho value type and its expansion algebra
// described in spec.md §3 and §4.2: multi-dimensional rectangular
// arrangements of tokens in which every axial line is a corpus-observed
// phrase.
package ortho

import (
	"encoding/binary"

	"lukechampine.com/blake3"

	"github.com/foldsearch/fold/internal/interner"
)

// Token aliases interner.Token so callers don't need to import interner
// just to call Ortho methods.
type Token = interner.Token

// emptyCell marks an unfilled payload slot. Tokens are non-negative 32-bit
// indices into an interner's vocabulary, so a sentinel one bit wider keeps
// "empty" unambiguous without reserving a real token value.
const emptyCell int64 = -1

// Ortho is an immutable multi-dimensional arrangement of tokens. Every
// method that needs shell order takes a *ShellCache explicitly; Ortho
// itself holds no cache and no package-level state is ever consulted.
type Ortho struct {
	dims    []uint32
	payload []int64
	id      uint64
	version uint64
}

// FromParts reconstructs an Ortho from its raw dims/payload/version, e.g.
// when decoding one from a disk-backed queue spill file. The id is
// recomputed from the given state rather than trusted from the wire.
func FromParts(dims []uint32, payload []int64, version uint64) *Ortho {
	o := &Ortho{
		dims:    append([]uint32(nil), dims...),
		payload: append([]int64(nil), payload...),
		version: version,
	}
	o.id = computeID(nil, o.dims, o.payload)

	return o
}

// New returns the seed Ortho: dims [2,2], all four cells empty.
func New(cache *ShellCache, version uint64) *Ortho {
	dims := []uint32{2, 2}
	payload := []int64{emptyCell, emptyCell, emptyCell, emptyCell}

	o := &Ortho{dims: dims, payload: payload, version: version}
	o.id = computeID(cache, dims, payload)

	return o
}

// Dims returns the axis lengths.
func (o *Ortho) Dims() []uint32 { return append([]uint32(nil), o.dims...) }

// Payload returns the shell-ordered cell values; emptyCell (-1) marks an
// unfilled cell.
func (o *Ortho) Payload() []int64 { return append([]int64(nil), o.payload...) }

// ID returns the ortho's stable id: hash(dims, payload) with bit 63
// cleared, a pure function of canonical state.
func (o *Ortho) ID() uint64 { return o.id }

// Version returns the interner version this ortho was produced under.
func (o *Ortho) Version() uint64 { return o.version }

// FilledCount returns the number of non-empty cells.
func (o *Ortho) FilledCount() int {
	n := 0
	for _, v := range o.payload {
		if v != emptyCell {
			n++
		}
	}

	return n
}

// Volume is ∏(dᵢ - 1), the optimality metric of spec.md §4.6.
func (o *Ortho) Volume() uint64 {
	v := uint64(1)
	for _, d := range o.dims {
		v *= uint64(d - 1)
	}

	return v
}

// currentPosition returns the shell-order slot index of the first empty
// cell, i.e. the number of filled cells.
func (o *Ortho) currentPosition() int {
	return o.FilledCount()
}

// GetRequirements returns the (forbidden, required) constraints for the
// token that would fill the current position, per spec.md §4.2.
func (o *Ortho) GetRequirements(cache *ShellCache) (forbidden []Token, required [][]Token) {
	layout := cache.layoutFor(o.dims)
	pos := o.currentPosition()
	cur := layout.locations[pos]
	curSum := sum(cur)

	for slot := 0; slot < pos; slot++ {
		if sum(layout.locations[slot]) == curSum {
			forbidden = append(forbidden, Token(o.payload[slot]))
		}
	}

	for axis := range o.dims {
		if cur[axis] == 0 {
			continue
		}

		seq := make([]Token, cur[axis])
		probe := append([]uint32(nil), cur...)

		for v := range cur[axis] {
			probe[axis] = v
			slot := layout.index[encodeCoord(probe)]
			seq[v] = Token(o.payload[slot])
		}

		required = append(required, seq)
	}

	return forbidden, required
}

// Add produces the children of filling the current position with token,
// per the four disjoint cases of spec.md §4.2.
func (o *Ortho) Add(cache *ShellCache, token Token, version uint64) []*Ortho {
	empties := len(o.payload) - o.FilledCount()

	if empties == 1 {
		if allEqual(o.dims) {
			return o.addBaseExpansion(cache, token, version)
		}

		return o.addAxisExpansion(cache, token, version)
	}

	if len(o.dims) == 2 && o.dims[0] == 2 && o.dims[1] == 2 && o.currentPosition() == 2 {
		return o.addCanonicalizingFill(cache, token, version)
	}

	return o.addSimpleFill(cache, token, version)
}

// addSimpleFill handles case 1: write token into the current slot, dims
// unchanged.
func (o *Ortho) addSimpleFill(cache *ShellCache, token Token, version uint64) []*Ortho {
	payload := append([]int64(nil), o.payload...)
	payload[o.currentPosition()] = int64(token)

	child := &Ortho{dims: o.dims, payload: payload, version: version}
	child.id = computeID(cache, child.dims, payload)

	return []*Ortho{child}
}

// addCanonicalizingFill handles case 2: the [2,2] slot-2 fill, which
// enforces slot1 <= slot2 by swapping if needed.
func (o *Ortho) addCanonicalizingFill(cache *ShellCache, token Token, version uint64) []*Ortho {
	payload := append([]int64(nil), o.payload...)
	payload[2] = int64(token)

	if payload[1] > payload[2] {
		payload[1], payload[2] = payload[2], payload[1]
	}

	child := &Ortho{dims: o.dims, payload: payload, version: version}
	child.id = computeID(cache, child.dims, payload)

	return []*Ortho{child}
}

// addBaseExpansion handles case 3: dims are [n,...,n] with one empty cell.
// Produces one child per new-axis insertion position.
func (o *Ortho) addBaseExpansion(cache *ShellCache, token Token, version uint64) []*Ortho {
	k := len(o.dims)
	n := o.dims[0]

	children := make([]*Ortho, 0, k+1)

	for p := 0; p <= k; p++ {
		newDims := make([]uint32, k+1)
		copy(newDims, o.dims[:p])
		newDims[p] = n
		copy(newDims[p+1:], o.dims[p:])

		embed := func(oldCoord []uint32) []uint32 {
			nc := make([]uint32, k+1)
			copy(nc, oldCoord[:p])
			nc[p] = 0
			copy(nc[p+1:], oldCoord[p:])

			return nc
		}

		child := o.reorganizeAndFill(cache, newDims, embed, token, version)
		children = append(children, child)
	}

	return children
}

// addAxisExpansion handles case 4: dims are not all equal. Every axis
// currently at the minority (smaller) length gets its own child with that
// axis extended by one.
func (o *Ortho) addAxisExpansion(cache *ShellCache, token Token, version uint64) []*Ortho {
	base := o.dims[0]
	for _, d := range o.dims {
		if d < base {
			base = d
		}
	}

	var children []*Ortho

	for axis, d := range o.dims {
		if d != base {
			continue
		}

		newDims := append([]uint32(nil), o.dims...)
		newDims[axis]++

		embed := func(oldCoord []uint32) []uint32 {
			return append([]uint32(nil), oldCoord...)
		}

		children = append(children, o.reorganizeAndFill(cache, newDims, embed, token, version))
	}

	return children
}

// reorganizeAndFill relocates every filled cell of o into the shell-order
// layout of newDims via embed, then writes token at the first empty slot
// of that new layout.
func (o *Ortho) reorganizeAndFill(cache *ShellCache, newDims []uint32, embed func([]uint32) []uint32, token Token, version uint64) *Ortho {
	oldLayout := cache.layoutFor(o.dims)
	newLayout := cache.layoutFor(newDims)

	newPayload := make([]int64, len(newLayout.locations))
	for i := range newPayload {
		newPayload[i] = emptyCell
	}

	for slot, v := range o.payload {
		if v == emptyCell {
			continue
		}

		newCoord := embed(oldLayout.locations[slot])
		newSlot := newLayout.index[encodeCoord(newCoord)]
		newPayload[newSlot] = v
	}

	for slot, v := range newPayload {
		if v == emptyCell {
			newPayload[slot] = int64(token)

			break
		}
	}

	child := &Ortho{dims: newDims, payload: newPayload, version: version}
	child.id = computeID(cache, newDims, newPayload)

	return child
}

func allEqual(dims []uint32) bool {
	for _, d := range dims {
		if d != dims[0] {
			return false
		}
	}

	return true
}

// computeID hashes the canonical (dims, payload) state with BLAKE3 and
// clears bit 63 of the resulting 64-bit digest to keep ids in the positive
// integer range, per spec.md §3. The ShellCache parameter is unused here
// today but kept so future incremental-id optimizations (permitted by
// spec.md §9 for add cases that provably don't reorder) can share the
// cache without changing this function's signature.
func computeID(_ *ShellCache, dims []uint32, payload []int64) uint64 {
	h := blake3.New(8, nil)

	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(dims)))
	h.Write(tmp[:])

	for _, d := range dims {
		binary.BigEndian.PutUint32(tmp[:], d)
		h.Write(tmp[:])
	}

	var tmp8 [8]byte
	for _, v := range payload {
		binary.BigEndian.PutUint64(tmp8[:], uint64(v))
		h.Write(tmp8[:])
	}

	sum := h.Sum(nil)
	id := binary.BigEndian.Uint64(sum)

	return id &^ (uint64(1) << 63)
}
