package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexCmd_FailsWithoutSourceAdapter(t *testing.T) {
	isolateHome(t)

	cmd := newIndexCmd()
	err := runIndex(cmd)
	assert.ErrorContains(t, err, "no source adapter configured")
}
