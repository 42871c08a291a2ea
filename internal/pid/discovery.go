// Package pid locates the process whose counters are observed.
package pid

import (
	"context"
	"errors"
	"os"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no process matches the configuration.
var ErrNotFound = errors.New("no matching target process")

const resolvedKey = "target"

// Discovery finds candidate target PIDs.
type Discovery interface {
	// Discover returns every matching PID, deduplicated.
	Discover(ctx context.Context) ([]int32, error)
}

// NewDiscovery creates a discovery combining name and cgroup matching.
func NewDiscovery(log logrus.FieldLogger, cfg Config) Discovery {
	return &compositeDiscovery{
		log:     log.WithField("component", "pid"),
		process: newProcessDiscovery(log, cfg.ProcessNames),
		cgroup:  newCgroupDiscovery(log, cfg.CgroupPath),
	}
}

type compositeDiscovery struct {
	log     logrus.FieldLogger
	process *processDiscovery
	cgroup  *cgroupDiscovery
}

func (d *compositeDiscovery) Discover(ctx context.Context) ([]int32, error) {
	seen := make(map[int32]struct{}, 8)
	result := make([]int32, 0, 8)

	var errs []error

	add := func(pids []int32) {
		for _, p := range pids {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				result = append(result, p)
			}
		}
	}

	pids, err := d.process.Discover(ctx)
	if err != nil {
		d.log.WithError(err).Warn("Process name discovery failed")
		errs = append(errs, err)
	}

	add(pids)

	pids, err = d.cgroup.Discover(ctx)
	if err != nil {
		d.log.WithError(err).Warn("Cgroup discovery failed")
		errs = append(errs, err)
	}

	add(pids)

	if len(result) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	slices.Sort(result)

	return result, nil
}

// Resolver picks a single target PID and caches it for a TTL so pollers
// do not rescan the process table on every tick.
type Resolver struct {
	log   logrus.FieldLogger
	cfg   Config
	disc  Discovery
	cache *cache.Cache
}

// NewResolver creates a resolver. disc may be nil, in which case the
// default discovery for cfg is used.
func NewResolver(log logrus.FieldLogger, cfg Config, disc Discovery) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Second
	}

	if disc == nil {
		disc = NewDiscovery(log, cfg)
	}

	return &Resolver{
		log:   log.WithField("component", "pid_resolver"),
		cfg:   cfg,
		disc:  disc,
		cache: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Resolve returns the target PID: the pinned PID, the agent's own PID when
// nothing is configured, or the lowest discovered PID.
func (r *Resolver) Resolve(ctx context.Context) (int32, error) {
	if r.cfg.PID != 0 {
		return r.cfg.PID, nil
	}

	if r.cfg.IsSelf() {
		return int32(os.Getpid()), nil
	}

	if v, ok := r.cache.Get(resolvedKey); ok {
		if p, ok := v.(int32); ok {
			return p, nil
		}
	}

	pids, err := r.disc.Discover(ctx)
	if err != nil {
		return 0, err
	}

	if len(pids) == 0 {
		return 0, ErrNotFound
	}

	target := slices.Min(pids)

	r.cache.Set(resolvedKey, target, cache.DefaultExpiration)

	r.log.WithFields(logrus.Fields{
		"pid":        target,
		"candidates": len(pids),
	}).Info("Resolved target process")

	return target, nil
}

// Invalidate drops the cached PID, forcing discovery on the next Resolve.
// Pollers call this when the cached process has exited.
func (r *Resolver) Invalidate() {
	r.cache.Delete(resolvedKey)
}
