package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

type fakeResolver struct {
	pid         int32
	err         error
	resolves    atomic.Int32
	invalidates atomic.Int32
}

func (f *fakeResolver) Resolve(context.Context) (int32, error) {
	f.resolves.Add(1)

	return f.pid, f.err
}

func (f *fakeResolver) Invalidate() {
	f.invalidates.Add(1)
}

func fakeHost(calls *atomic.Int32) HostInfoFunc {
	return func(context.Context) (HostInfo, error) {
		calls.Add(1)

		return HostInfo{Hostname: "rig", Platform: "test"}, nil
	}
}

func TestSession_AttachIdempotent(t *testing.T) {
	var hostCalls atomic.Int32

	res := &fakeResolver{pid: 77}
	s := NewSession(testLog(), res, fakeHost(&hostCalls))

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, s.Attach(context.Background()))
		}()
	}

	wg.Wait()

	assert.True(t, s.Attached())
	assert.Equal(t, 1, s.Attaches())
	assert.Equal(t, int32(1), hostCalls.Load())
	assert.Equal(t, "rig", s.Host().Hostname)

	pid, err := s.Target(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(77), pid)
}

func TestSession_TargetBeforeAttach(t *testing.T) {
	s := NewSession(testLog(), &fakeResolver{pid: 1}, fakeHost(new(atomic.Int32)))

	_, err := s.Target(context.Background())
	require.ErrorIs(t, err, ErrNotAttached)
}

func TestSession_AttachFailureRetries(t *testing.T) {
	var hostCalls atomic.Int32

	res := &fakeResolver{err: errors.New("not running")}
	s := NewSession(testLog(), res, fakeHost(&hostCalls))

	require.Error(t, s.Attach(context.Background()))
	assert.False(t, s.Attached())

	res.err = nil
	res.pid = 9

	require.NoError(t, s.Attach(context.Background()))
	assert.True(t, s.Attached())
	assert.Equal(t, int32(2), hostCalls.Load())
}

func TestSession_Detach(t *testing.T) {
	res := &fakeResolver{pid: 3}
	s := NewSession(testLog(), res, fakeHost(new(atomic.Int32)))

	s.Detach()
	assert.Equal(t, int32(0), res.invalidates.Load())

	require.NoError(t, s.Attach(context.Background()))

	s.Detach()
	s.Detach()

	assert.False(t, s.Attached())
	assert.Equal(t, int32(1), res.invalidates.Load())

	require.NoError(t, s.Attach(context.Background()))
	assert.Equal(t, 2, s.Attaches())
}

func TestCPUTimes_TotalBusy(t *testing.T) {
	c := CPUTimes{User: 10, Nice: 1, System: 5, Idle: 80, Iowait: 2, Irq: 1, Softirq: 1}

	assert.InDelta(t, 100.0, c.Total(), 1e-9)
	assert.InDelta(t, 18.0, c.Busy(), 1e-9)
}
