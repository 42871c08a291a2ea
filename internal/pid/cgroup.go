package pid

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// cgroupRoot anchors relative cgroup paths such as "user.slice/game.scope".
const cgroupRoot = "/sys/fs/cgroup"

// cgroupFiles are tried in order: cgroup v2, then the v1 task list.
var cgroupFiles = []string{"cgroup.procs", "tasks"}

type cgroupDiscovery struct {
	log  logrus.FieldLogger
	dir  string
	root string
}

func newCgroupDiscovery(log logrus.FieldLogger, path string) *cgroupDiscovery {
	return &cgroupDiscovery{
		log:  log.WithField("discovery", "cgroup"),
		dir:  path,
		root: cgroupRoot,
	}
}

func (d *cgroupDiscovery) path() string {
	if d.dir == "" || filepath.IsAbs(d.dir) {
		return d.dir
	}

	return filepath.Join(d.root, d.dir)
}

// Discover returns the members of the configured cgroup in file order.
// Zero PIDs, which mark threads in other namespaces, are skipped.
func (d *cgroupDiscovery) Discover(ctx context.Context) ([]int32, error) {
	dir := d.path()
	if dir == "" {
		return nil, nil
	}

	for _, name := range cgroupFiles {
		pids, err := d.read(ctx, filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		return pids, err
	}

	return nil, fmt.Errorf("no cgroup.procs or tasks in %s: %w", dir, fs.ErrNotExist)
}

func (d *cgroupDiscovery) read(ctx context.Context, path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pids := make([]int32, 0, 4)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		v, err := strconv.ParseInt(line, 10, 32)
		if err != nil {
			d.log.WithFields(logrus.Fields{
				"file": path,
				"line": line,
			}).Warn("Skipping non-numeric cgroup entry")

			continue
		}

		if v <= 0 {
			continue
		}

		pids = append(pids, int32(v))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return pids, nil
}
