package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/sirupsen/logrus"
)

// ErrNotAttached is returned by Target before a successful Attach.
var ErrNotAttached = errors.New("session not attached")

// TargetResolver resolves the observed process.
type TargetResolver interface {
	Resolve(ctx context.Context) (int32, error)
	Invalidate()
}

// HostInfo identifies the machine the session attached to.
type HostInfo struct {
	Hostname string
	OS       string
	Platform string
	Kernel   string
}

// HostInfoFunc reads host identity during Attach.
type HostInfoFunc func(ctx context.Context) (HostInfo, error)

// GopsutilHostInfo reads host identity through gopsutil.
func GopsutilHostInfo(ctx context.Context) (HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("reading host info: %w", err)
	}

	return HostInfo{
		Hostname: info.Hostname,
		OS:       info.OS,
		Platform: info.Platform,
		Kernel:   info.KernelVersion,
	}, nil
}

// Session is the OS integration state shared by every poller. Attach and
// Detach are serialised by one coarse lock and are idempotent: the first
// successful Attach does the work, later calls return immediately.
type Session struct {
	log      logrus.FieldLogger
	resolver TargetResolver
	hostInfo HostInfoFunc

	mu       sync.Mutex
	attached bool
	attaches int
	host     HostInfo
}

// NewSession creates a detached session. A nil hostInfo selects
// GopsutilHostInfo.
func NewSession(
	log logrus.FieldLogger,
	resolver TargetResolver,
	hostInfo HostInfoFunc,
) *Session {
	if hostInfo == nil {
		hostInfo = GopsutilHostInfo
	}

	return &Session{
		log:      log.WithField("component", "session"),
		resolver: resolver,
		hostInfo: hostInfo,
	}
}

// Attach performs the one-time OS integration.
func (s *Session) Attach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return nil
	}

	info, err := s.hostInfo(ctx)
	if err != nil {
		return fmt.Errorf("attaching: %w", err)
	}

	pid, err := s.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving target: %w", err)
	}

	s.host = info
	s.attached = true
	s.attaches++

	s.log.WithFields(logrus.Fields{
		"hostname": info.Hostname,
		"platform": info.Platform,
		"kernel":   info.Kernel,
		"pid":      pid,
	}).Info("Session attached")

	return nil
}

// Detach releases the session. Safe to call when not attached.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return
	}

	s.attached = false
	s.resolver.Invalidate()

	s.log.Info("Session detached")
}

// Attached reports whether Attach has succeeded and Detach has not run
// since.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attached
}

// Attaches returns how many real attaches have happened.
func (s *Session) Attaches() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attaches
}

// Host returns the host identity recorded at attach.
func (s *Session) Host() HostInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.host
}

// Target returns the current target PID.
func (s *Session) Target(ctx context.Context) (int32, error) {
	if !s.Attached() {
		return 0, ErrNotAttached
	}

	return s.resolver.Resolve(ctx)
}

// TargetGone drops the cached target so the next Target call rediscovers
// it.
func (s *Session) TargetGone() {
	s.resolver.Invalidate()
}
