//go:build linux || darwin

package dispatch

import "golang.org/x/sys/unix"

// unlimited treats anything this large as RLIM_INFINITY, whose value
// differs between platforms.
const unlimited = 1 << 31

// openFileLimit returns the soft RLIMIT_NOFILE.
func openFileLimit() (uint64, bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, false
	}
	cur := uint64(rl.Cur)
	if cur >= unlimited {
		return 0, false
	}
	return cur, true
}
