package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInit_CreatesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	buf := &bytes.Buffer{}
	cmd := newInitCmd()
	cmd.SetOut(buf)

	require.NoError(t, runInit(cmd, false))
	assert.FileExists(t, filepath.Join(dir, projectConfigFile))
	assert.Contains(t, buf.String(), "Created")
}

func TestRunInit_RefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	require.NoError(t, os.WriteFile(projectConfigFile, []byte("existing: true\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := newInitCmd()
	cmd.SetOut(buf)

	require.NoError(t, runInit(cmd, false))
	assert.Contains(t, buf.String(), "already exists")

	data, err := os.ReadFile(projectConfigFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "existing: true")
}

// chdir changes the working directory for the duration of a test and
// returns a func to restore it.
func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}
