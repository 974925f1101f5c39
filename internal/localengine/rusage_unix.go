//go:build unix

package localengine

import (
	"os"
	"runtime"
	"syscall"
)

// maxRSSMB reads the peak resident set size of a finished process. Linux
// reports Maxrss in kilobytes, darwin in bytes.
func maxRSSMB(ps *os.ProcessState) int {
	ru, ok := ps.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	if runtime.GOOS == "darwin" {
		return int(ru.Maxrss / (1024 * 1024))
	}
	return int(ru.Maxrss / 1024)
}
