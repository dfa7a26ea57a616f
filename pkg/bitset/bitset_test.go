package bitset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/pkg/bitset"
)

func TestSetTestClear(t *testing.T) {
	b := bitset.New(10)
	assert.False(t, b.Test(3))

	b.Set(3)
	assert.True(t, b.Test(3))

	b.Clear(3)
	assert.False(t, b.Test(3))
}

func TestGrowPreservesBits(t *testing.T) {
	b := bitset.New(4)
	b.Set(1)
	b.Set(3)

	b.Grow(100)
	assert.Equal(t, uint(100), b.Len())
	assert.True(t, b.Test(1))
	assert.True(t, b.Test(3))
	assert.False(t, b.Test(50))
}

func TestGrowShrinkPanics(t *testing.T) {
	b := bitset.New(10)
	assert.Panics(t, func() { b.Grow(5) })
}

func TestSetAllAndComplement(t *testing.T) {
	b := bitset.New(5)
	b.SetAll()

	for i := range uint(5) {
		assert.True(t, b.Test(i))
	}

	assert.Equal(t, 5, b.PopCount())

	b.Complement()
	assert.Equal(t, 0, b.PopCount())
}

func TestUnionAndIntersect(t *testing.T) {
	a := bitset.New(8)
	a.Set(1)
	a.Set(2)

	b := bitset.New(8)
	b.Set(2)
	b.Set(3)

	union := a.Clone()
	union.UnionWith(b)
	assert.Equal(t, []uint32{1, 2, 3}, union.Ones())

	intersect := a.Clone()
	intersect.IntersectWith(b)
	assert.Equal(t, []uint32{2}, intersect.Ones())
}

func TestOnesOrderedAscending(t *testing.T) {
	b := bitset.New(200)
	for _, i := range []uint{199, 0, 130, 64, 65} {
		b.Set(i)
	}

	require.Equal(t, []uint32{0, 64, 65, 130, 199}, b.Ones())
}

func TestBytesRoundTrip(t *testing.T) {
	b := bitset.New(70)
	b.Set(0)
	b.Set(69)
	b.Set(33)

	restored := bitset.FromBytes(70, b.Bytes())
	assert.Equal(t, b.Ones(), restored.Ones())
	assert.Equal(t, uint(70), restored.Len())
}

func TestIndexOutOfRangePanics(t *testing.T) {
	b := bitset.New(4)
	assert.Panics(t, func() { b.Set(4) })
	assert.Panics(t, func() { b.Test(10) })
}
