//go:build !linux

package clock

func nanotime() int64 {
	return fallbackNanotime()
}
