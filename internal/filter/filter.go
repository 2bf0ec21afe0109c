// internal/filter/filter.go
package filter

// RunningAverage smooths a stream of integer samples over a fixed window.
// The zero value is uninitialized and returns each sample unchanged.
type RunningAverage struct {
	window []int
	index  int
	count  int
	sum    int
}

// New returns a RunningAverage over the last size samples. A size below 1
// yields an uninitialized filter.
func New(size int) *RunningAverage {
	f := &RunningAverage{}
	if size > 0 {
		f.window = make([]int, size)
	}
	return f
}

// Push records v and returns the integer mean of the samples currently in
// the window.
func (f *RunningAverage) Push(v int) int {
	if len(f.window) == 0 {
		return v
	}

	f.sum -= f.window[f.index]
	f.window[f.index] = v
	f.sum += v
	f.index = (f.index + 1) % len(f.window)
	if f.count < len(f.window) {
		f.count++
	}
	return f.sum / f.count
}

// Size is the window length, 0 when uninitialized.
func (f *RunningAverage) Size() int {
	return len(f.window)
}

// Count is the number of samples in the window.
func (f *RunningAverage) Count() int {
	return f.count
}

// Reset empties the window without changing its size.
func (f *RunningAverage) Reset() {
	for i := range f.window {
		f.window[i] = 0
	}
	f.index, f.count, f.sum = 0, 0, 0
}
