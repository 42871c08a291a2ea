package pid

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
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

type fakeDiscovery struct {
	pids  []int32
	err   error
	calls int
}

func (f *fakeDiscovery) Discover(context.Context) ([]int32, error) {
	f.calls++

	return f.pids, f.err
}

func TestResolver_Self(t *testing.T) {
	r := NewResolver(testLog(), Config{}, &fakeDiscovery{})

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), got)
}

func TestResolver_PinnedPID(t *testing.T) {
	disc := &fakeDiscovery{pids: []int32{1}}
	r := NewResolver(testLog(), Config{PID: 4242, ProcessNames: []string{"game"}}, disc)

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4242), got)
	assert.Equal(t, 0, disc.calls)
}

func TestResolver_LowestAndCached(t *testing.T) {
	disc := &fakeDiscovery{pids: []int32{900, 120, 455}}
	r := NewResolver(testLog(), Config{ProcessNames: []string{"game"}}, disc)

	ctx := context.Background()

	got, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(120), got)

	_, err = r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, disc.calls)

	r.Invalidate()

	_, err = r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, disc.calls)
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(testLog(), Config{ProcessNames: []string{"game"}}, &fakeDiscovery{})

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_DiscoveryError(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(testLog(), Config{ProcessNames: []string{"game"}}, &fakeDiscovery{err: boom})

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestCgroupDiscovery(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "cgroup.procs"),
		[]byte("301\n\nnot-a-pid\n0\n17\n"),
		0o644,
	))

	pids, err := newCgroupDiscovery(testLog(), dir).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int32{301, 17}, pids)

	_, err = newCgroupDiscovery(testLog(), filepath.Join(dir, "missing")).
		Discover(context.Background())
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCgroupDiscovery_V1TasksAndRelativePath(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "games", "session")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "tasks"),
		[]byte("4242\n"),
		0o644,
	))

	d := newCgroupDiscovery(testLog(), "games/session")
	d.root = root

	pids, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int32{4242}, pids)
}

func TestCompositeDiscovery_CgroupSortedDeduped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "cgroup.procs"),
		[]byte("50\n7\n50\n"),
		0o644,
	))

	disc := NewDiscovery(testLog(), Config{CgroupPath: dir})

	pids, err := disc.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 50}, pids)
}

func TestProcessDiscovery_NoNames(t *testing.T) {
	pids, err := newProcessDiscovery(testLog(), nil).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pids)
}
