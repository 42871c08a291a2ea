package pacer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfhud/internal/clock"
)

func TestFromRate(t *testing.T) {
	assert.InDelta(t, 1.0/60, FromRate(60), 1e-12)
	assert.Equal(t, 0.0, FromRate(0))
	assert.Equal(t, 0.0, FromRate(-30))
}

func TestWait_PacesToTarget(t *testing.T) {
	p := New(clock.New(), 0.005)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	assert.Equal(t, uint64(0), p.Frames())

	start := time.Now()

	for range 20 {
		require.NoError(t, p.Wait(ctx))
	}

	elapsed := time.Since(start)

	assert.Equal(t, uint64(20), p.Frames())
	assert.GreaterOrEqual(t, elapsed, 95*time.Millisecond)
	assert.GreaterOrEqual(t, p.EffectiveInterval(), 0.004)
	assert.Less(t, p.EffectiveInterval(), 0.05)
}

func TestWait_Cancelled(t *testing.T) {
	p := New(clock.New(), 10)

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.Wait(ctx))

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Wait(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestChangeTarget_KeepsTiming(t *testing.T) {
	p := New(clock.New(), 0.002)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	require.Equal(t, uint64(1), p.Frames())

	p.ChangeTarget(0.01)

	assert.InDelta(t, 0.01, p.Target(), 1e-12)
	assert.Equal(t, uint64(1), p.Frames())

	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, p.EffectiveInterval(), 0.009)
}

func TestConfigure_Resets(t *testing.T) {
	p := New(clock.New(), 0.001)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))

	p.Configure(math.NaN())

	assert.Equal(t, 0.0, p.Target())
	assert.Equal(t, uint64(0), p.Frames())
	assert.Equal(t, 0.0, p.EffectiveInterval())
}

func TestWait_ReanchorsWhenBehind(t *testing.T) {
	p := New(clock.New(), 0.002, WithSpinThreshold(0))
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))

	// Stall for many intervals.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, p.Wait(ctx))

	// The schedule resumes from now instead of returning immediately for
	// each missed interval.
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
}
