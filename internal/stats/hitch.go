package stats

import "math"

// DefaultHitchTolerance flags samples above 1.5x the window mean.
const DefaultHitchTolerance = 1.5

// edgeCounter counts rising edges across a threshold.
type edgeCounter struct {
	threshold float64
	over      bool
	count     int
}

func newEdgeCounter(threshold float64) *edgeCounter {
	return &edgeCounter{threshold: threshold}
}

func (e *edgeCounter) observe(v float64) {
	if v > e.threshold {
		if !e.over {
			e.count++
		}

		e.over = true

		return
	}

	e.over = false
}

// CountHitches counts transitions from at-or-below to above
// tolerance*mean in values, so a sustained stall spanning several samples
// is one hitch.
func CountHitches(values []float64, tolerance, mean float64) int {
	edge := newEdgeCounter(tolerance * mean)

	for _, v := range values {
		edge.observe(v)
	}

	return edge.count
}

// HitchReport is the result of a HitchDetector evaluation.
type HitchReport struct {
	Hitches   int
	Mean      float64
	Threshold float64
	Samples   int
}

// HitchDetector evaluates hitches against the window's own mean.
type HitchDetector struct {
	// Tolerance is the multiple of the mean a sample must exceed.
	Tolerance float64
	// WindowSeconds is the trailing span examined.
	WindowSeconds float64
}

// NewHitchDetector returns a detector, defaulting tolerance and window
// when they are not positive.
func NewHitchDetector(tolerance, windowSeconds float64) HitchDetector {
	if tolerance <= 0 {
		tolerance = DefaultHitchTolerance
	}

	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	return HitchDetector{Tolerance: tolerance, WindowSeconds: windowSeconds}
}

// Detect evaluates w. The mean and the hitch count come from the same
// sample set.
func (d HitchDetector) Detect(w *Window) HitchReport {
	samples := w.Samples(d.WindowSeconds)
	if len(samples) == 0 {
		return HitchReport{Mean: math.NaN(), Threshold: math.NaN()}
	}

	values := make([]float64, len(samples))

	var sum float64

	for i, s := range samples {
		values[i] = s.Value
		sum += s.Value
	}

	mean := sum / float64(len(values))

	return HitchReport{
		Hitches:   CountHitches(values, d.Tolerance, mean),
		Mean:      mean,
		Threshold: d.Tolerance * mean,
		Samples:   len(values),
	}
}
