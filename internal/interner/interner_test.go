package interner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/internal/interner"
)

func Test_FromText_Builds_Version_One_With_Sorted_Vocabulary(t *testing.T) {
	t.Parallel()

	in := interner.FromText("c b a.")
	assert.Equal(t, uint64(1), in.Version())
	assert.Equal(t, 3, in.VocabularySize())

	a, ok := in.TokenForString("a")
	require.True(t, ok)
	assert.Equal(t, interner.Token(0), a)
}

func Test_Intersect_Returns_Completions_For_Required_Prefix(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b c.")
	a, _ := in.TokenForString("a")
	b, _ := in.TokenForString("b")
	c, _ := in.TokenForString("c")

	got := in.Intersect([][]interner.Token{{a}}, nil)
	assert.Equal(t, []uint32{uint32(b)}, got)

	got = in.Intersect([][]interner.Token{{a, b}}, nil)
	assert.Equal(t, []uint32{uint32(c)}, got)
}

func Test_Intersect_Excludes_Forbidden_Tokens(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b c. a b d.")
	a, _ := in.TokenForString("a")
	b, _ := in.TokenForString("b")
	c, _ := in.TokenForString("c")
	d, _ := in.TokenForString("d")

	got := in.Intersect([][]interner.Token{{a, b}}, []interner.Token{c})
	assert.Equal(t, []uint32{uint32(d)}, got)
}

func Test_Intersect_With_Empty_Required_Uses_All_Tokens(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b.")
	a, _ := in.TokenForString("a")

	got := in.Intersect(nil, []interner.Token{a})
	require.Len(t, got, 1)

	b, _ := in.TokenForString("b")
	assert.Equal(t, uint32(b), got[0])
}

func Test_Intersect_Missing_Prefix_Contributes_No_Bits(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b.")
	ghost := interner.Token(999) // not resolvable but representative of an absent prefix

	got := in.Intersect([][]interner.Token{{ghost}}, nil)
	assert.Empty(t, got)
}

func Test_AddText_Extends_Vocabulary_Monotonically(t *testing.T) {
	t.Parallel()

	i1 := interner.FromText("a b.")
	i2 := i1.AddText("a c.")

	assert.Equal(t, uint64(2), i2.Version())
	assert.Equal(t, uint64(1), i1.Version(), "AddText must not mutate the receiver")

	a1, _ := i1.TokenForString("a")
	a2, _ := i2.TokenForString("a")
	assert.Equal(t, a1, a2, "existing token indices must be stable across AddText")

	_, ok := i2.TokenForString("c")
	assert.True(t, ok)
}

func Test_AddText_Only_Sets_New_Bits_Never_Clears(t *testing.T) {
	t.Parallel()

	i1 := interner.FromText("a b.")
	i2 := i1.AddText("a c.")

	a, _ := i1.TokenForString("a")
	b, _ := i1.TokenForString("b")

	before := i1.Intersect([][]interner.Token{{a}}, nil)
	after := i2.Intersect([][]interner.Token{{a}}, nil)

	assert.Contains(t, after, uint32(b))
	for _, tok := range before {
		assert.Contains(t, after, tok)
	}
}

func Test_StringForToken_Panics_On_Out_Of_Range(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a.")
	assert.Panics(t, func() { in.StringForToken(interner.Token(77)) })
}

func Test_Snapshot_Round_Trips_Through_MarshalBinary(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b c. a c d.")

	data, err := in.MarshalBinary()
	require.NoError(t, err)

	restored := interner.New()
	require.NoError(t, restored.UnmarshalBinary(data))

	assert.Equal(t, in.Version(), restored.Version())
	assert.Equal(t, in.VocabularySize(), restored.VocabularySize())

	a, _ := in.TokenForString("a")
	b, _ := in.TokenForString("b")

	want := in.Intersect([][]interner.Token{{a}}, nil)
	got := restored.Intersect([][]interner.Token{{a}}, nil)
	assert.Equal(t, want, got)

	assert.Equal(t, in.StringForToken(b), restored.StringForToken(b))
}

func Test_UnmarshalBinary_Rejects_Bad_Magic(t *testing.T) {
	t.Parallel()

	in := interner.New()
	err := in.UnmarshalBinary([]byte("not a snapshot"))
	assert.ErrorIs(t, err, interner.ErrCorruptSnapshot)
}
