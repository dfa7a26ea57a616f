package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/internal/checkpoint"
	"github.com/foldsearch/fold/internal/driver"
	"github.com/foldsearch/fold/internal/interner"
	"github.com/foldsearch/fold/internal/memconfig"
	"github.com/foldsearch/fold/internal/ortho"
	"github.com/foldsearch/fold/pkg/diskqueue"
	"github.com/foldsearch/fold/pkg/fs"
	"github.com/foldsearch/fold/pkg/tracker"
)

type nullLogger struct{}

func (nullLogger) Info(string, ...any) {}

func newDriver(t *testing.T, dir string, checkpointEvery int) (*driver.Driver, *checkpoint.Manager) {
	t.Helper()

	ckp := checkpoint.NewManager(fs.NewReal(), dir)

	results, err := diskqueue.Open(fs.NewReal(), ckp.ResultsPath(), 100, checkpoint.OrthoCodec{})
	require.NoError(t, err)

	seen := tracker.New(16, 1024)

	cfg := driver.Config{
		CheckpointEvery: checkpointEvery,
		Memory:          memconfig.Config{QueueBufferSize: 100, TrackerBaseCapacity: 16, BloomBits: 1024},
	}

	return driver.New(nullLogger{}, ckp, cfg, results, seen), ckp
}

func Test_Run_Drains_Work_Queue_On_A_Small_Corpus(t *testing.T) {
	t.Parallel()

	in := interner.FromText("the cat sat. the cat ran.")

	d, _ := newDriver(t, t.TempDir(), 0)
	d.Seed(in.Version())

	stats, err := d.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Positive(t, stats.Processed)
	assert.NotNil(t, stats.Optimal)
}

func Test_Run_Never_Revisits_An_Already_Seen_Child(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b c. a b d.")

	d, _ := newDriver(t, t.TempDir(), 0)
	d.Seed(in.Version())

	stats, err := d.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, stats.Processed, 1+stats.Generated)
}

func Test_Run_Checkpoints_Periodically_And_Survives_Restart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := interner.FromText("the cat sat. the cat ran. the dog sat.")

	d, ckp := newDriver(t, dir, 2)
	d.Seed(in.Version())

	stats, err := d.Run(context.Background(), in)
	require.NoError(t, err)
	require.Positive(t, stats.Processed)

	restoredInterner, restoredResults, restoredTracker, err := ckp.Load(memconfig.Config{QueueBufferSize: 100, TrackerBaseCapacity: 16, BloomBits: 1024})
	require.NoError(t, err)
	require.NotNil(t, restoredInterner)

	var restoredItems []*ortho.Ortho

	for {
		item, ok, err := restoredResults.Pop()
		require.NoError(t, err)

		if !ok {
			break
		}

		restoredItems = append(restoredItems, item)
	}

	assert.NotEmpty(t, restoredItems)
	assert.Equal(t, restoredTracker.Len(), len(restoredItems))
}

func Test_DescribeOptimal_Renders_Payload_As_Vocabulary_Words(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b c.")
	cache := ortho.NewShellCache()

	seed := ortho.New(cache, in.Version())
	aTok, _ := in.TokenForString("a")
	filled := seed.Add(cache, aTok, in.Version())[0]

	words := driver.DescribeOptimal(in, filled)
	require.Len(t, words, 4)
	assert.Equal(t, "a", words[0])
}

func Test_DescribeOptimal_Returns_Nil_For_Nil_Ortho(t *testing.T) {
	t.Parallel()

	in := interner.FromText("a b.")
	assert.Nil(t, driver.DescribeOptimal(in, nil))
}
