package pid

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
)

type processDiscovery struct {
	log   logrus.FieldLogger
	names map[string]struct{}
}

func newProcessDiscovery(
	log logrus.FieldLogger,
	names []string,
) *processDiscovery {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}

	return &processDiscovery{
		log:   log.WithField("discovery", "process"),
		names: set,
	}
}

// Discover lists running processes and returns those whose name matches
// one of the configured names, case-insensitively.
func (d *processDiscovery) Discover(ctx context.Context) ([]int32, error) {
	if len(d.names) == 0 {
		return nil, nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	pids := make([]int32, 0, 4)

	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Exited between listing and inspection.
			continue
		}

		if _, ok := d.names[strings.ToLower(name)]; !ok {
			continue
		}

		d.log.WithFields(logrus.Fields{
			"pid":  p.Pid,
			"name": name,
		}).Debug("Found matching process")

		pids = append(pids, p.Pid)
	}

	return pids, nil
}
