// Package stats implements streaming statistics used by the signal
// extractor and the physical-layer metric collectors: mean and standard
// deviation computed in a single pass without retaining samples.
package stats

import "math"

// Online accumulates count, mean, and variance via Welford's algorithm.
type Online struct {
	count int64
	mean  float64
	m2    float64
	min   float64
	max   float64
}

// NewOnline returns a zeroed accumulator.
func NewOnline() *Online {
	return &Online{min: math.Inf(1), max: math.Inf(-1)}
}

// Add folds one sample into the running statistics.
func (o *Online) Add(x float64) {
	o.count++
	delta := x - o.mean
	o.mean += delta / float64(o.count)
	delta2 := x - o.mean
	o.m2 += delta * delta2
	if x < o.min {
		o.min = x
	}
	if x > o.max {
		o.max = x
	}
}

// Count returns the number of samples folded in so far.
func (o *Online) Count() int64 { return o.count }

// Mean returns the running mean, or 0 if no samples have been added.
func (o *Online) Mean() float64 { return o.mean }

// Variance returns the population variance, or 0 if fewer than one sample.
func (o *Online) Variance() float64 {
	if o.count == 0 {
		return 0
	}
	return o.m2 / float64(o.count)
}

// Stddev returns the population standard deviation.
func (o *Online) Stddev() float64 {
	return math.Sqrt(o.Variance())
}

// Min returns the minimum sample seen, or +Inf if none.
func (o *Online) Min() float64 { return o.min }

// Max returns the maximum sample seen, or -Inf if none.
func (o *Online) Max() float64 { return o.max }

// Snapshot is the immutable summary of an Online accumulator at a point in
// time, suitable for embedding in a report.
type Snapshot struct {
	Count   int64
	Mean    float64
	Stddev  float64
	Min     float64
	Max     float64
}

// Snapshot captures the accumulator's current state.
func (o *Online) Snapshot() Snapshot {
	return Snapshot{
		Count:  o.count,
		Mean:   o.mean,
		Stddev: o.Stddev(),
		Min:    o.min,
		Max:    o.max,
	}
}
