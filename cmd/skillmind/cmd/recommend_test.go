package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendCmd_NoStoredPatternsReportsNone(t *testing.T) {
	isolateHome(t)

	buf := &bytes.Buffer{}
	cmd := newRecommendCmd()
	cmd.SetOut(buf)

	require.NoError(t, runRecommend(cmd, "react testing setup", "", "", "", 10, 0, false))
	assert.Contains(t, buf.String(), "no recommendations found")
}

func TestRecommendCmd_RequiresContextArgument(t *testing.T) {
	cmd := newRecommendCmd()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
