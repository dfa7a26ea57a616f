package splitter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/internal/splitter"
)

func Test_Vocabulary_Returns_Sorted_Deduplicated_Lowercase_Words(t *testing.T) {
	t.Parallel()

	got := splitter.Vocabulary("A b c. B a!")
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func Test_Vocabulary_Strips_Punctuation_But_Keeps_Apostrophes(t *testing.T) {
	t.Parallel()

	got := splitter.Vocabulary("Don't stop; (really) don't.")
	assert.Equal(t, []string{"don't", "really", "stop"}, got)
}

func Test_Vocabulary_Empty_Text_Returns_Empty_Slice(t *testing.T) {
	t.Parallel()

	got := splitter.Vocabulary("")
	assert.Empty(t, got)
}

func Test_Phrases_Returns_Every_Contiguous_Run_Of_Length_Two_Or_More(t *testing.T) {
	t.Parallel()

	got := splitter.Phrases("a b c.")
	require.Len(t, got, 3)
	assert.Contains(t, got, []string{"a", "b"})
	assert.Contains(t, got, []string{"b", "c"})
	assert.Contains(t, got, []string{"a", "b", "c"})
}

func Test_Phrases_Does_Not_Cross_Sentence_Boundaries(t *testing.T) {
	t.Parallel()

	got := splitter.Phrases("a b. c d.")
	for _, p := range got {
		assert.NotContains(t, p, "c")
	}
}

func Test_Phrases_Splits_On_Blank_Line(t *testing.T) {
	t.Parallel()

	got := splitter.Phrases("a b\n\nc d")
	require.Len(t, got, 2)
}

func Test_Phrases_Single_Word_Sentence_Has_No_Phrases(t *testing.T) {
	t.Parallel()

	got := splitter.Phrases("a.")
	assert.Empty(t, got)
}

func Test_Phrases_Empty_Text_Returns_No_Phrases(t *testing.T) {
	t.Parallel()

	assert.Empty(t, splitter.Phrases(""))
}
