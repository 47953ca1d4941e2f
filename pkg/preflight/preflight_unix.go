//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// platformValidateMountPoint checks whether the path resides on the root
// filesystem when it does not look like a deliberate local target. A mirror
// destination under /mnt or /media that shares the root device is almost
// certainly an unmounted drive's empty mount directory.
func platformValidateMountPoint(path string) error {
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" && strings.HasPrefix(path, homeDir) {
		return nil
	}
	if !strings.HasPrefix(path, "/mnt/") && !strings.HasPrefix(path, "/media/") {
		return nil
	}

	rootInfo, err := os.Stat("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat target path: %w", err)
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	if pathStat.Dev == rootStat.Dev {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your external drive is mounted", path)
	}
	return nil
}

// FreeSpace returns the number of bytes available to an unprivileged caller
// on the filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("failed to statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
