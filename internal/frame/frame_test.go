package frame

import (
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfhud/internal/clock"
	"github.com/ethpandaops/perfhud/internal/stats"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

func newTracker(t *testing.T, clk clock.Clock) *Tracker {
	t.Helper()

	tr, err := NewTracker(DefaultConfig(), clk, 0, stats.Locked)
	require.NoError(t, err)

	return tr
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "disabled ignores fields", cfg: Config{}},
		{name: "zero window", cfg: Config{Enabled: true, HitchTolerance: 2}, wantErr: true},
		{name: "tolerance too low", cfg: Config{Enabled: true, Window: time.Second, HitchTolerance: 1}, wantErr: true},
		{
			name:    "negative synthetic rate",
			cfg:     Config{Enabled: true, Window: time.Second, HitchTolerance: 2, SyntheticRate: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTracker_EmptySnapshot(t *testing.T) {
	tr := newTracker(t, clock.NewManual(0))

	snap := tr.Snapshot(0)
	assert.Zero(t, snap.Frames)
	assert.True(t, math.IsNaN(snap.FPS))
	assert.True(t, math.IsNaN(snap.MeanMs))
	assert.True(t, math.IsNaN(snap.P99Ms))
	assert.True(t, math.IsNaN(snap.Low1FPS))
	assert.True(t, math.IsNaN(snap.LifetimeP99Ms))
}

func TestTracker_RecordDiscards(t *testing.T) {
	tr := newTracker(t, clock.NewManual(0))

	assert.True(t, tr.Record(16.6, 0))
	assert.False(t, tr.Record(MaxFrameTimeMs, 0))
	assert.False(t, tr.Record(2500, 0))
	assert.False(t, tr.Record(0, 0))
	assert.False(t, tr.Record(math.NaN(), 0))

	assert.Equal(t, uint64(1), tr.Received())
	assert.Equal(t, uint64(4), tr.Dropped())
	assert.Equal(t, 1, tr.Window().Len())
}

func TestTracker_Snapshot(t *testing.T) {
	clk := clock.NewManual(0)
	tr := newTracker(t, clk)
	tr.SetAPI("Vulkan")

	// Stale frame outside the 1s window.
	tr.Record(100, clk.Now())

	clk.Advance(2)

	frames := []float64{10, 10, 10, 40, 10, 10, 10, 10, 10, 10}
	for _, ms := range frames {
		clk.Advance(ms / 1000)
		tr.Record(ms, clk.Now())
	}

	snap := tr.Snapshot(0)
	assert.Equal(t, "Vulkan", snap.API)
	assert.Equal(t, len(frames), snap.Frames)
	assert.InDelta(t, 13.0, snap.MeanMs, 1e-9)
	assert.InDelta(t, 1000.0/13.0, snap.FPS, 1e-9)
	assert.InDelta(t, 10.0, snap.MinMs, 1e-9)
	assert.InDelta(t, 40.0, snap.MaxMs, 1e-9)
	assert.Equal(t, 1, snap.Hitches)
	assert.InDelta(t, 40.0, snap.P99Ms, 0.05)
	assert.InDelta(t, 25.0, snap.Low1FPS, 0.05)
	assert.InDelta(t, 40.0, snap.LifetimeP99Ms, 1)
	assert.Equal(t, uint64(len(frames)+1), snap.Received)

	tr.Reset()
	assert.Zero(t, tr.Received())
	assert.True(t, math.IsNaN(tr.Snapshot(0).LifetimeP99Ms))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return conn
}

func TestServer_IngestsFrames(t *testing.T) {
	clk := clock.NewManual(0)
	tr := newTracker(t, clk)
	s := NewServer(testLog(), clk, tr)

	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Message{FrameTimeMs: 16, API: "D3D12"}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(Message{FrameTimeMs: 17}))
	require.NoError(t, conn.WriteJSON(Message{FrameTimeMs: 5000}))

	require.Eventually(t, func() bool {
		return tr.Received() == 2 && tr.Dropped() == 1 && s.Malformed() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), s.Connections())
	assert.Equal(t, "D3D12", tr.Snapshot(0).API)

	require.NoError(t, conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	))
	_ = conn.Close()

	require.Eventually(t, func() bool {
		return s.Connections() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPacedLoop_RecordsEffectiveInterval(t *testing.T) {
	clk := clock.New()
	tr := newTracker(t, clk)
	loop := NewPacedLoop(testLog(), clk, tr, 200)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- loop.Run(ctx, nil)
	}()

	require.Eventually(t, func() bool {
		return tr.Received() >= 10
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.InDelta(t, 0.005, loop.Pacer().Target(), 1e-12)
	assert.Greater(t, loop.Pacer().EffectiveInterval(), 0.0)

	snap := tr.Snapshot(10)
	assert.Greater(t, snap.MeanMs, 4.0)
}

func TestPacedLoop_StopsOnShutdown(t *testing.T) {
	clk := clock.New()
	tr := newTracker(t, clk)
	loop := NewPacedLoop(testLog(), clk, tr, 500)

	var shutdown atomic.Bool

	shutdown.Store(true)

	done := make(chan error, 1)

	go func() {
		done <- loop.Run(context.Background(), &shutdown)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not observe shutdown")
	}
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	const (
		producers = 4
		frames    = 5000
	)

	for _, policy := range []stats.SyncPolicy{stats.Locked, stats.Relaxed} {
		t.Run(policy.String(), func(t *testing.T) {
			clk := clock.New()

			tr, err := NewTracker(DefaultConfig(), clk, 0, policy)
			require.NoError(t, err)

			var wg sync.WaitGroup

			for range producers {
				wg.Add(1)

				go func() {
					defer wg.Done()

					for range frames {
						tr.Record(16, clk.Now())
					}
				}()
			}

			wg.Wait()

			assert.Equal(t, uint64(producers*frames), tr.Received())
			assert.Equal(t, tr.Received(), tr.Window().Writes())
			assert.Equal(t, tr.Received(), tr.lifetime.Count())
		})
	}
}

func TestServer_SeveralProducersShareTracker(t *testing.T) {
	const frames = 200

	for _, policy := range []stats.SyncPolicy{stats.Locked, stats.Relaxed} {
		t.Run(policy.String(), func(t *testing.T) {
			clk := clock.New()

			tr, err := NewTracker(DefaultConfig(), clk, 0, policy)
			require.NoError(t, err)

			s := NewServer(testLog(), clk, tr)
			srv := httptest.NewServer(s)
			defer srv.Close()

			loop := NewPacedLoop(testLog(), clk, tr, 1000)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)

			go func() {
				done <- loop.Run(ctx, nil)
			}()

			conns := []*websocket.Conn{dial(t, srv), dial(t, srv)}

			require.Eventually(t, func() bool {
				return s.Connections() == 2
			}, time.Second, time.Millisecond)

			var wg sync.WaitGroup

			for _, conn := range conns {
				wg.Add(1)

				go func(conn *websocket.Conn) {
					defer wg.Done()

					for range frames {
						assert.NoError(t, conn.WriteJSON(Message{FrameTimeMs: 16}))
					}

					assert.NoError(t, conn.WriteMessage(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					))
				}(conn)
			}

			wg.Wait()

			// The handler drains every frame before it sees the close.
			require.Eventually(t, func() bool {
				return s.Connections() == 0
			}, 2*time.Second, 5*time.Millisecond)

			for _, conn := range conns {
				_ = conn.Close()
			}

			cancel()
			require.NoError(t, <-done)

			assert.GreaterOrEqual(t, tr.Received(), uint64(2*frames))
			assert.Equal(t, tr.Received(), tr.Window().Writes())
		})
	}
}
