package stats

import (
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Summary is a consistent set of reductions over one trailing window.
type Summary struct {
	Count   int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
	Hitches int
}

// Empty reports whether no samples qualified.
func (s Summary) Empty() bool {
	return s.Count == 0
}

// Summarize reduces the window once: the mean is computed a single time
// and reused for variance and hitch detection.
func Summarize(w *Window, seconds, tolerance float64) Summary {
	samples := w.Samples(seconds)

	out := Summary{
		Count: len(samples),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}

	if out.Count == 0 {
		out.Mean = math.NaN()
		out.StdDev = math.NaN()

		return out
	}

	values := make([]float64, len(samples))

	var sum float64

	for i, s := range samples {
		values[i] = s.Value
		sum += s.Value

		if s.Value < out.Min {
			out.Min = s.Value
		}

		if s.Value > out.Max {
			out.Max = s.Value
		}
	}

	out.Mean = sum / float64(out.Count)

	var sq float64

	for _, v := range values {
		d := v - out.Mean
		sq += d * d
	}

	out.StdDev = math.Sqrt(sq / float64(out.Count))

	if tolerance > 0 {
		out.Hitches = CountHitches(values, tolerance, out.Mean)
	}

	return out
}

// Histogram bounds in recorded units. With a scale of 1000 on millisecond
// samples this spans 1us to 60s.
const (
	histMin     = 1
	histMax     = 60_000_000
	histSigFigs = 3
)

// Percentiles returns the requested percentiles (0-100) of the samples in
// the window. Samples are multiplied by scale before recording into an
// HdrHistogram and divided back on the way out. Every result is NaN when
// the window is empty.
func Percentiles(w *Window, seconds, scale float64, percentiles ...float64) []float64 {
	out := make([]float64, len(percentiles))

	if scale <= 0 {
		scale = 1
	}

	h := hdrhistogram.New(histMin, histMax, histSigFigs)

	w.each(w.Threshold(seconds), func(s Sample) {
		if math.IsNaN(s.Value) || s.Value < 0 {
			return
		}

		// Clamp before converting: +Inf and huge values would overflow
		// int64.
		scaled := s.Value * scale

		var v int64

		switch {
		case scaled >= histMax:
			v = histMax
		case scaled < histMin:
			v = histMin
		default:
			v = int64(math.Round(scaled))
		}

		_ = h.RecordValue(v)
	})

	for i, p := range percentiles {
		if h.TotalCount() == 0 {
			out[i] = math.NaN()

			continue
		}

		out[i] = float64(h.ValueAtQuantile(p)) / scale
	}

	return out
}
