//go:build linux

package clock

import "golang.org/x/sys/unix"

// nanotime reads CLOCK_MONOTONIC_RAW, which is not slewed by NTP.
func nanotime() int64 {
	var ts unix.Timespec

	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return fallbackNanotime()
	}

	return ts.Nano()
}
