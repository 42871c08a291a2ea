package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfhud/internal/clock"
)

func TestCountHitches(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		tolerance float64
		mean      float64
		want      int
	}{
		{
			name:      "runs merge",
			values:    []float64{10, 10, 25, 26, 24, 10, 10, 30, 10},
			tolerance: 2,
			mean:      10,
			want:      2,
		},
		{
			name:      "sustained stall is one hitch",
			values:    []float64{16, 300, 300, 300, 300, 300, 300, 16},
			tolerance: 2,
			mean:      16,
			want:      1,
		},
		{
			name:      "equal to threshold is not over",
			values:    []float64{20, 20, 20},
			tolerance: 2,
			mean:      10,
			want:      0,
		},
		{
			name:      "trailing run counted",
			values:    []float64{10, 50},
			tolerance: 2,
			mean:      10,
			want:      1,
		},
		{
			name:      "alternating",
			values:    []float64{50, 1, 50, 1, 50},
			tolerance: 2,
			mean:      10,
			want:      3,
		},
		{name: "empty", values: nil, tolerance: 2, mean: 10, want: 0},
		{
			name:      "nan mean never hitches",
			values:    []float64{1, 100},
			tolerance: 2,
			mean:      math.NaN(),
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountHitches(tt.values, tt.tolerance, tt.mean))
		})
	}
}

func TestHitchDetector_Detect(t *testing.T) {
	clk := clock.NewManual(1000)
	w := NewWindow(clk, DefaultCapacity, Locked)

	d := NewHitchDetector(0, 0)
	assert.Equal(t, DefaultHitchTolerance, d.Tolerance)
	assert.Equal(t, 1.0, d.WindowSeconds)

	empty := d.Detect(w)
	assert.Equal(t, 0, empty.Hitches)
	assert.True(t, math.IsNaN(empty.Mean))

	// 300ms stall sampled every 16ms at 60 fps.
	for i := range 60 {
		v := 16.0
		if i >= 20 && i < 39 {
			v = 300
		}

		clk.Advance(0.016)
		w.Add(v, clk.Now())
	}

	report := NewHitchDetector(2, 10).Detect(w)
	assert.Equal(t, 1, report.Hitches)
	assert.Equal(t, 60, report.Samples)
	assert.InDelta(t, report.Mean*2, report.Threshold, 1e-9)
}

func TestSummarize(t *testing.T) {
	clk := clock.NewManual(1000)
	w := NewWindow(clk, DefaultCapacity, Locked)

	empty := Summarize(w, 10, 2)
	assert.True(t, empty.Empty())
	assert.True(t, math.IsNaN(empty.Mean))
	assert.True(t, math.IsInf(empty.Min, 1))
	assert.True(t, math.IsInf(empty.Max, -1))

	fill(w, clk, 2, 4, 4, 4, 5, 5, 7, 9)

	s := Summarize(w, 10, 1.7)
	assert.Equal(t, 8, s.Count)
	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	assert.InDelta(t, 2.0, s.StdDev, 1e-9)
	assert.InDelta(t, 2.0, s.Min, 1e-9)
	assert.InDelta(t, 9.0, s.Max, 1e-9)
	// Only 9 exceeds 8.5.
	assert.Equal(t, 1, s.Hitches)

	noHitches := Summarize(w, 10, 0)
	assert.Equal(t, 0, noHitches.Hitches)
}

func TestPercentiles(t *testing.T) {
	clk := clock.NewManual(1000)
	w := NewWindow(clk, DefaultCapacity, Locked)

	empty := Percentiles(w, 10, 1000, 50, 99)
	require.Len(t, empty, 2)
	assert.True(t, math.IsNaN(empty[0]))
	assert.True(t, math.IsNaN(empty[1]))

	for i := 1; i <= 100; i++ {
		clk.Advance(0.01)
		w.Add(float64(i), clk.Now())
	}

	got := Percentiles(w, 10, 1000, 50, 99, 100)
	require.Len(t, got, 3)

	assert.InDelta(t, 50.0, got[0], 0.1)
	assert.InDelta(t, 99.0, got[1], 0.1)
	assert.InDelta(t, 100.0, got[2], 0.1)
}

func TestPercentiles_InfiniteSamplesClampHigh(t *testing.T) {
	clk := clock.NewManual(1000)
	w := NewWindow(clk, DefaultCapacity, Locked)

	for _, v := range []float64{5, math.Inf(1), math.Inf(1)} {
		clk.Advance(0.01)
		w.Add(v, clk.Now())
	}

	got := Percentiles(w, 10, 1000, 1, 99)
	require.Len(t, got, 2)

	assert.InDelta(t, 5.0, got[0], 0.01)
	// Infinite samples land in the top bucket, not the bottom one.
	assert.InEpsilon(t, float64(histMax)/1000, got[1], 0.01)
}

func TestLifetime(t *testing.T) {
	l, err := NewLifetime(0)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(l.Quantile(0.5)))
	assert.True(t, math.IsNaN(l.Mean()))

	for i := 1; i <= 1000; i++ {
		require.NoError(t, l.Add(float64(i)))
	}

	require.Error(t, l.Add(math.NaN()))
	require.Error(t, l.Add(math.Inf(1)))

	assert.Equal(t, uint64(1000), l.Count())
	assert.InEpsilon(t, 500.0, l.Quantile(0.5), 0.02)
	assert.InEpsilon(t, 990.0, l.Quantile(0.99), 0.02)
	assert.InDelta(t, 500.5, l.Mean(), 1e-9)

	l.Reset()
	assert.Equal(t, uint64(0), l.Count())
}
