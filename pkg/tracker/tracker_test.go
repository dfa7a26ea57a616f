package tracker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foldsearch/fold/pkg/tracker"
)

func Test_Contains_Is_False_For_Never_Inserted_Id(t *testing.T) {
	t.Parallel()

	tr := tracker.New(4, 1024)
	assert.False(t, tr.Contains(42))
}

func Test_Insert_Then_Contains_Is_True_Before_Flush(t *testing.T) {
	t.Parallel()

	tr := tracker.New(16, 1024)
	tr.Insert(7)

	assert.True(t, tr.Contains(7))
	assert.False(t, tr.Contains(8))
}

func Test_Insert_Is_Noop_For_Already_Present_Id(t *testing.T) {
	t.Parallel()

	tr := tracker.New(16, 1024)
	tr.Insert(7)
	tr.Insert(7)

	assert.Equal(t, 1, tr.Len())
}

func Test_Buffer_Flushes_Into_Level_Zero_At_Base_Capacity(t *testing.T) {
	t.Parallel()

	tr := tracker.New(4, 4096)

	for i := uint64(0); i < 4; i++ {
		tr.Insert(i)
	}

	for i := uint64(0); i < 4; i++ {
		assert.True(t, tr.Contains(i))
	}

	assert.Equal(t, 4, tr.Len())
}

func Test_Cascade_Promotes_Through_Multiple_Levels(t *testing.T) {
	t.Parallel()

	tr := tracker.New(4, 8192)

	const n = 200
	for i := uint64(0); i < n; i++ {
		tr.Insert(i)
	}

	for i := uint64(0); i < n; i++ {
		assert.True(t, tr.Contains(i), "id %d should be found across buffer/levels", i)
	}

	assert.Equal(t, n, tr.Len())
}

func Test_Flush_Does_Not_Change_Membership(t *testing.T) {
	t.Parallel()

	tr := tracker.New(16, 4096)
	tr.Insert(1)
	tr.Insert(2)
	tr.Insert(3)

	tr.Flush()

	assert.True(t, tr.Contains(1))
	assert.True(t, tr.Contains(2))
	assert.True(t, tr.Contains(3))
	assert.Equal(t, 3, tr.Len())
}

func Test_Len_Counts_Distinct_Ids_Only(t *testing.T) {
	t.Parallel()

	tr := tracker.New(4, 4096)

	ids := []uint64{1, 2, 1, 3, 2, 4}
	for _, id := range ids {
		tr.Insert(id)
	}

	assert.Equal(t, 4, tr.Len())
}
