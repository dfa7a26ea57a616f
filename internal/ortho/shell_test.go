package ortho_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foldsearch/fold/internal/ortho"
)

func Test_ShellCache_Orders_Coordinates_By_Sum_Then_Lexicographic(t *testing.T) {
	t.Parallel()

	cache := ortho.NewShellCache()
	o := ortho.New(cache, 1)
	o = o.Add(cache, 7, 1)[0]
	o = o.Add(cache, 8, 1)[0]
	o = o.Add(cache, 9, 1)[0]

	// dims [2,2]: shell order must be (0,0) sum0, (0,1)/(1,0) sum1, (1,1) sum2,
	// so slot 1 holds (0,1) and slot 2 holds (1,0). The last cell (1,1) then
	// takes slot 1's token as its axis-0 prefix and slot 2's as its axis-1
	// prefix, and no earlier slot shares its shell.
	forbidden, required := o.GetRequirements(cache)
	assert.Empty(t, forbidden)
	assert.Equal(t, [][]ortho.Token{{8}, {9}}, required)
}

func Test_ShellCache_Shared_Cache_Yields_Equal_IDs_For_Same_Dims(t *testing.T) {
	t.Parallel()

	cache := ortho.NewShellCache()
	a := ortho.New(cache, 1)
	b := ortho.New(cache, 1)

	// Independently constructed orthos over the same dims and payload must
	// agree on id, which is a hash of dims and payload alone.
	assert.Equal(t, a.ID(), b.ID())
}
