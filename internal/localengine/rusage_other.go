//go:build !unix

package localengine

import "os"

// maxRSSMB is unavailable outside unix.
func maxRSSMB(*os.ProcessState) int {
	return 0
}
