package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsearch/fold/internal/cli"
)

func runFold(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	var out, errOut bytes.Buffer

	exitCode = cli.Run(nil, &out, &errOut, append([]string{"fold"}, args...), map[string]string{}, nil)

	return out.String(), errOut.String(), exitCode
}

func Test_Run_With_No_Args_Prints_Usage_And_Exits_Zero(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runFold(t)
	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "fold - a corpus ortho search engine")
	assert.Contains(t, stdout, "ingest")
	assert.Contains(t, stdout, "run")
	assert.Contains(t, stdout, "inspect")
}

func Test_Run_With_Unknown_Command_Exits_Nonzero(t *testing.T) {
	t.Parallel()

	_, stderr, code := runFold(t, "--cwd", t.TempDir(), "bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

func Test_Run_Ingest_Then_Run_Reports_The_Optimal_Ortho(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(corpus, []byte("the cat sat. the cat ran."), 0o644))

	_, stderr, code := runFold(t, "--cwd", dir, "ingest", corpus)
	require.Equal(t, 0, code, stderr)

	stdout, stderr, code := runFold(t, "--cwd", dir, "run")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "processed")
	assert.Contains(t, stdout, "optimal: ")
}

func Test_Run_Rejects_Ingest_Without_A_Path(t *testing.T) {
	t.Parallel()

	_, stderr, code := runFold(t, "--cwd", t.TempDir(), "ingest")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected exactly one path argument")
}

func Test_Run_Config_Init_Writes_A_Default_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	stdout, stderr, code := runFold(t, "--cwd", dir, "config", "init")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "fold.jsonc")

	data, err := os.ReadFile(filepath.Join(dir, "fold.jsonc"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "state_dir"))
}

func Test_Run_Config_Init_Refuses_To_Overwrite_Without_Force(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, stderr, code := runFold(t, "--cwd", dir, "config", "init")
	require.Equal(t, 0, code, stderr)

	_, stderr, code = runFold(t, "--cwd", dir, "config", "init")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")
}
