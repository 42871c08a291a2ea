package clock

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

func TestMonotonic_Advances(t *testing.T) {
	clk := New()

	a := clk.Now()
	time.Sleep(2 * time.Millisecond)
	b := clk.Now()

	assert.Greater(t, int64(b), int64(a))
	assert.Equal(t, NanosPerSecond, clk.TicksPerSecond())
}

func TestSecondsToTicks(t *testing.T) {
	clk := NewManual(1000)

	tests := []struct {
		name    string
		seconds float64
		want    int64
	}{
		{name: "zero", seconds: 0, want: 0},
		{name: "fractional", seconds: 1.5, want: 1500},
		{name: "negative", seconds: -3, want: 0},
		{name: "nan", seconds: math.NaN(), want: 0},
		{name: "infinite", seconds: math.Inf(1), want: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clk.SecondsToTicks(tt.seconds))
		})
	}

	assert.InDelta(t, 2.5, clk.TicksToSeconds(2500), 1e-9)
}

func TestThreshold(t *testing.T) {
	clk := NewManual(1000)
	clk.Set(10_000)

	assert.Equal(t, Tick(8_000), Threshold(clk, 2))
	assert.Equal(t, Tick(10_000), Threshold(clk, 0))
	assert.Equal(t, Tick(math.MinInt64), Threshold(clk, math.Inf(1)))
}

func TestManual_Advance(t *testing.T) {
	clk := NewManual(0)

	assert.Equal(t, NanosPerSecond, clk.TicksPerSecond())
	assert.Equal(t, Tick(0), clk.Now())

	now := clk.Advance(0.5)
	assert.Equal(t, Tick(NanosPerSecond/2), now)
	assert.Equal(t, now, clk.Now())
}

func TestNewReportClock_Validation(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewReportClock(testLog(), genesis, 0, 32)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window must be > 0")

	_, err = NewReportClock(testLog(), genesis, time.Second, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "windowsPerEpoch must be > 0")
}

func TestReportClock_WindowStartTime(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	clk, err := NewReportClock(testLog(), genesis, 2*time.Second, 30)
	require.NoError(t, err)

	defer func() { _ = clk.Stop() }()

	tests := []struct {
		window uint64
		want   time.Time
	}{
		{window: 0, want: genesis},
		{window: 1, want: genesis.Add(2 * time.Second)},
		{window: 45, want: genesis.Add(90 * time.Second)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, clk.WindowStartTime(tt.window))
	}

	assert.Equal(t, 2*time.Second, clk.Duration())
}

func TestReportClock_CurrentWindow(t *testing.T) {
	genesis := time.Now().Add(-10 * time.Second)

	clk, err := NewReportClock(testLog(), genesis, time.Second, 32)
	require.NoError(t, err)

	require.NoError(t, clk.Start(context.Background()))
	defer func() { _ = clk.Stop() }()

	window := clk.CurrentWindow()
	assert.GreaterOrEqual(t, window, uint64(9))
	assert.LessOrEqual(t, window, uint64(11))
	assert.Less(t, clk.MillisIntoWindow(), uint64(1000))
}
