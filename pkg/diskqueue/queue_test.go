package diskqueue_test

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/pkg/diskqueue"
	"github.com/foldsearch/fold/pkg/fs"
)

type uint32Codec struct{}

func (uint32Codec) Encode(v uint32) ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)

	return b, nil
}

func (uint32Codec) Decode(data []byte) (uint32, error) {
	return binary.BigEndian.Uint32(data), nil
}

func Test_Push_Pop_Preserves_FIFO_Order_Without_Spilling(t *testing.T) {
	t.Parallel()

	q, err := diskqueue.Open(fs.NewReal(), t.TempDir(), 10, uint32Codec{})
	require.NoError(t, err)

	for i := range uint32(5) {
		require.NoError(t, q.Push(i))
	}

	for i := range uint32(5) {
		v, ok, err := q.Pop()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok, err := q.Pop()
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_Push_Spills_Oldest_Half_When_Buffer_Limit_Exceeded(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	q, err := diskqueue.Open(fs.NewReal(), base, 4, uint32Codec{})
	require.NoError(t, err)

	const n = 20

	for i := range uint32(n) {
		require.NoError(t, q.Push(i))
	}

	got := make([]uint32, 0, n)

	for {
		v, ok, err := q.Pop()
		require.NoError(t, err)

		if !ok {
			break
		}

		got = append(got, v)
	}

	want := make([]uint32, n)
	for i := range want {
		want[i] = uint32(i)
	}

	assert.Equal(t, want, got)
}

func Test_Flush_Then_Reopen_Reconstructs_Queue_From_Spill_Files(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "queue")

	q, err := diskqueue.Open(fs.NewReal(), base, 100, uint32Codec{})
	require.NoError(t, err)

	for i := range uint32(7) {
		require.NoError(t, q.Push(i))
	}

	require.NoError(t, q.Flush())

	reopened, err := diskqueue.Open(fs.NewReal(), base, 100, uint32Codec{})
	require.NoError(t, err)

	assert.Equal(t, 7, reopened.Len())

	for i := range uint32(7) {
		v, ok, err := reopened.Pop()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func Test_Len_Is_Zero_For_Empty_Queue(t *testing.T) {
	t.Parallel()

	q, err := diskqueue.Open(fs.NewReal(), t.TempDir(), 10, uint32Codec{})
	require.NoError(t, err)

	assert.Equal(t, 0, q.Len())
}

func Test_Open_Rejects_Non_Positive_Buffer_Limit(t *testing.T) {
	t.Parallel()

	_, err := diskqueue.Open(fs.NewReal(), t.TempDir(), 0, uint32Codec{})
	assert.Error(t, err)
}

// Test_Push_Retries_Spill_Once_Then_Bubbles_Under_Persistent_Chaos exercises
// spec.md §7.1's "recoverable during queue spill (retry once, then fatal)"
// through a [fs.Chaos]-wrapped filesystem, the way checkpoint tests already
// do for Manager's own directory operations.
func Test_Push_Retries_Spill_Once_Then_Bubbles_Under_Persistent_Chaos(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{OpenFailRate: 1.0})

	q, err := diskqueue.Open(chaos, t.TempDir(), 1, uint32Codec{})
	require.NoError(t, err)
	require.NoError(t, q.Push(0))

	err = q.Push(1)
	require.Error(t, err)
	assert.True(t, fs.IsChaosErr(err))
	assert.Equal(t, int64(2), chaos.Stats().OpenFails)
}

// Test_Pop_Retries_Spill_File_Load_Once_Then_Bubbles_Under_Persistent_Chaos
// exercises the Pop-side counterpart: a spill file exists on disk, but every
// attempt to reopen it for replay fails. Construction and seeding run with
// chaos disabled ([fs.ChaosModeNoOp]) so the spill file is written cleanly;
// only the reload is exposed to fault injection.
func Test_Pop_Retries_Spill_File_Load_Once_Then_Bubbles_Under_Persistent_Chaos(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 3, fs.ChaosConfig{OpenFailRate: 1.0})
	chaos.SetMode(fs.ChaosModeNoOp)

	q, err := diskqueue.Open(chaos, t.TempDir(), 1, uint32Codec{})
	require.NoError(t, err)
	require.NoError(t, q.Push(0))
	require.NoError(t, q.Push(1)) // spills item 0 to disk

	chaos.SetMode(fs.ChaosModeActive)

	_, _, err = q.Pop()
	require.Error(t, err)
	assert.True(t, fs.IsChaosErr(err))
	assert.Equal(t, int64(2), chaos.Stats().OpenFails)
}
