package fs_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/pkg/fs"
)

const testContentHello = "hello, fold"

func TestAtomicWriteFile_DurableAfterWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fs.NewReal()
	writer := fs.NewAtomicWriter(real)

	path := filepath.Join(dir, "final.txt")

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	require.NoError(t, err)

	got, err := real.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testContentHello, string(got))
}

func TestAtomicWriteFile_LeavesNoTempFileOnSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fs.NewReal()
	writer := fs.NewAtomicWriter(real)

	path := filepath.Join(dir, "final.txt")
	require.NoError(t, writer.WriteWithDefaults(path, strings.NewReader(testContentHello)))

	entries, err := real.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "final.txt", entries[0].Name())
}

func TestAtomicWriteFile_FailsCleanlyUnderInjectedWriteFault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	chaosFS := fs.NewChaos(fs.NewReal(), 12345, fs.ChaosConfig{WriteFailRate: 1.0})
	writer := fs.NewAtomicWriter(chaosFS)

	path := filepath.Join(dir, "final.txt")

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	assert.Error(t, err)

	exists, err := fs.NewReal().Exists(path)
	require.NoError(t, err)
	assert.False(t, exists, "a failed atomic write must not leave a partial final file")
}
