package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFisherMatrix_RoundTrip(t *testing.T) {
	f := NewFisherMatrix(8)
	f.Update([]float32{1, 2, 3, 4, 5, 6, 7, 8})
	f.Update([]float32{0, 1, 0, 1, 0, 1, 0, 1})
	f.Decay(0.9)

	data := f.Serialize()
	require.Len(t, data, 4+8*8)

	restored := NewFisherMatrix(8)
	require.NoError(t, restored.Deserialize(data))

	assert.Equal(t, f.ImportanceVector(), restored.ImportanceVector())
	assert.Equal(t, f.UpdateCount(), restored.UpdateCount())
}

func TestFisherMatrix_DeserializeWrongLength_FailsCorruptAndResets(t *testing.T) {
	f := NewFisherMatrix(4)
	f.Update([]float32{1, 1, 1, 1})
	require.NotZero(t, f.UpdateCount())

	err := f.Deserialize([]byte{1, 2, 3})
	require.Error(t, err)

	assert.Zero(t, f.UpdateCount())
	for _, v := range f.ImportanceVector() {
		assert.Zero(t, v)
	}
}

func TestFisherMatrix_ImportanceIsRunningSumOverUpdateCount(t *testing.T) {
	f := NewFisherMatrix(2)
	f.Update([]float32{2, 0})
	f.Update([]float32{4, 0})

	imp := f.ImportanceVector()
	// running_sum[0] = 4 + 16 = 20, update_count = 2 -> importance = 10
	assert.InDelta(t, 10, imp[0], 1e-6)
	assert.InDelta(t, 0, imp[1], 1e-6)
}

func TestFisherMatrix_Decay_ScalesRunningSum(t *testing.T) {
	f := NewFisherMatrix(1)
	f.Update([]float32{10})
	before := f.ImportanceVector()[0]

	f.Decay(0.5)
	after := f.ImportanceVector()[0]

	assert.InDelta(t, before*0.5, after, 1e-6)
}
