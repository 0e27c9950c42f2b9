package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_ReportsWritableDataDirectory(t *testing.T) {
	isolateHome(t)

	buf := &bytes.Buffer{}
	cmd := newDoctorCmd()
	cmd.SetOut(buf)

	require.NoError(t, runDoctor(cmd, false))
	assert.Contains(t, buf.String(), "configuration")
	assert.Contains(t, buf.String(), "data directory")
}

func TestDoctorCmd_JSONOutput(t *testing.T) {
	isolateHome(t)

	buf := &bytes.Buffer{}
	cmd := newDoctorCmd()
	cmd.SetOut(buf)

	require.NoError(t, runDoctor(cmd, true))
	assert.Contains(t, buf.String(), "\"status\"")
}

func TestCheckDataDir_EmptyPathIsOK(t *testing.T) {
	result := checkDataDir("")
	assert.Equal(t, checkOK, result.Status)
}

func TestCheckEmbedder_StaticProviderIsAvailable(t *testing.T) {
	isolateHome(t)
	cfg := testConfigWithStaticEmbedding()

	result := checkEmbedder(testContext(), cfg)
	assert.Equal(t, checkOK, result.Status)
}
