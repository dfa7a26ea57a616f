package memconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/internal/memconfig"
)

func Test_Calculate_Returns_Config_On_A_Typical_Machine(t *testing.T) {
	t.Parallel()

	cfg, err := memconfig.Calculate(0.75, 0, 1_000_000)
	require.NoError(t, err)

	assert.Positive(t, cfg.QueueBufferSize)
	assert.Positive(t, cfg.TrackerBaseCapacity)
	assert.Positive(t, cfg.BloomBits)
}

func Test_Calculate_Fails_When_Interner_Bytes_Exceed_Target(t *testing.T) {
	t.Parallel()

	// An absurdly large interner size forces "available" to zero under any
	// real amount of total RAM, which must fall below the minimum viable
	// configuration and surface ErrInsufficientMemory.
	_, err := memconfig.Calculate(0.75, 1<<62, 0)
	assert.ErrorIs(t, err, memconfig.ErrInsufficientMemory)
}

func Test_Calculate_Defaults_Bloom_Capacity_When_No_Expected_Results(t *testing.T) {
	t.Parallel()

	cfg, err := memconfig.Calculate(0.75, 0, 0)
	require.NoError(t, err)

	assert.Positive(t, cfg.BloomBits)
}
