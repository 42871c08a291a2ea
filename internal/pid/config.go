package pid

import "time"

// Config selects the process whose memory and I/O counters are polled.
type Config struct {
	// ProcessNames matches executable names (as reported by the OS,
	// e.g. "Fallout4.exe" or "hl2_linux"). When several processes match,
	// the lowest PID wins.
	ProcessNames []string `yaml:"process_names"`

	// CgroupPath is a cgroup directory listing the target in cgroup.procs
	// (v2) or tasks (v1). Relative paths are under /sys/fs/cgroup. Linux
	// only.
	CgroupPath string `yaml:"cgroup_path"`

	// PID pins an explicit process ID. Takes precedence over names and
	// cgroup.
	PID int32 `yaml:"pid"`

	// CacheTTL is how long a resolved PID is reused before discovery
	// runs again. Defaults to 10s.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// IsSelf reports whether no target was configured, in which case the
// agent observes its own process.
func (c Config) IsSelf() bool {
	return c.PID == 0 && len(c.ProcessNames) == 0 && c.CgroupPath == ""
}
