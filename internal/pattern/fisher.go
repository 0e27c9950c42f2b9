package pattern

import (
	"encoding/binary"
	"math"
	"strconv"
	"sync"

	skillerrors "github.com/skillmind/skillmind/internal/errors"
)

// FisherMatrix holds a diagonal approximation of the Fisher Information
// Matrix: a per-dimension importance estimate updated online from
// squared-gradient observations, with exponential decay at consolidation
// time. One instance is a process singleton per Pattern Store.
type FisherMatrix struct {
	mu          sync.Mutex
	dimension   int
	importance  []float32
	runningSum  []float32
	updateCount uint32
}

// NewFisherMatrix creates a zeroed Fisher matrix for the given dimension.
func NewFisherMatrix(dimension int) *FisherMatrix {
	return &FisherMatrix{
		dimension:  dimension,
		importance: make([]float32, dimension),
		runningSum: make([]float32, dimension),
	}
}

// Dimension returns the configured vector dimension D.
func (f *FisherMatrix) Dimension() int {
	return f.dimension
}

// Update folds a gradient observation in: running_sum[i] += gradient[i]^2,
// update_count += 1, then recomputes importance.
func (f *FisherMatrix) Update(gradient []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.dimension
	if len(gradient) < n {
		n = len(gradient)
	}
	for i := 0; i < n; i++ {
		f.runningSum[i] += gradient[i] * gradient[i]
	}
	f.updateCount++
	f.refreshImportance()
}

// Decay multiplies running_sum by factor (0,1] then recomputes importance.
func (f *FisherMatrix) Decay(factor float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.runningSum {
		f.runningSum[i] = float32(float64(f.runningSum[i]) * factor)
	}
	f.refreshImportance()
}

// refreshImportance recomputes importance[i] = running_sum[i] / max(1, update_count).
// Caller must hold f.mu.
func (f *FisherMatrix) refreshImportance() {
	denom := float32(f.updateCount)
	if denom < 1 {
		denom = 1
	}
	for i := range f.runningSum {
		f.importance[i] = f.runningSum[i] / denom
	}
}

// ImportanceVector returns a read-only snapshot of the current importance.
func (f *FisherMatrix) ImportanceVector() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]float32, len(f.importance))
	copy(out, f.importance)
	return out
}

// UpdateCount returns the number of update() calls observed so far.
func (f *FisherMatrix) UpdateCount() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCount
}

// Serialize packs the matrix as: 4-byte little-endian update_count, then D
// float32 importance values, then D float32 running_sum values. Total size
// is 4 + 8*D bytes.
func (f *FisherMatrix) Serialize() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := make([]byte, 4+8*f.dimension)
	binary.LittleEndian.PutUint32(buf[0:4], f.updateCount)

	off := 4
	for i := 0; i < f.dimension; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f.importance[i]))
		off += 4
	}
	for i := 0; i < f.dimension; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f.runningSum[i]))
		off += 4
	}
	return buf
}

// Deserialize validates and loads a buffer produced by Serialize. A buffer
// of the wrong length fails with CorruptMatrix and leaves the matrix reset
// to zero state (never partially applied).
func (f *FisherMatrix) Deserialize(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := 4 + 8*f.dimension
	if len(data) != want {
		f.updateCount = 0
		f.importance = make([]float32, f.dimension)
		f.runningSum = make([]float32, f.dimension)
		return skillerrors.PatternStoreError(skillerrors.ErrCodeCorruptMatrix,
			"fisher matrix buffer has wrong length", nil).
			WithDetail("expected_bytes", strconv.Itoa(want)).
			WithDetail("got_bytes", strconv.Itoa(len(data)))
	}

	updateCount := binary.LittleEndian.Uint32(data[0:4])
	importance := make([]float32, f.dimension)
	runningSum := make([]float32, f.dimension)

	off := 4
	for i := 0; i < f.dimension; i++ {
		importance[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	for i := 0; i < f.dimension; i++ {
		runningSum[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}

	f.updateCount = updateCount
	f.importance = importance
	f.runningSum = runningSum
	return nil
}
