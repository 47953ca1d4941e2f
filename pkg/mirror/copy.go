package mirror

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mirrorlabs.io/repomirror/pkg/util"
)

// copyFileSafe copies a file into place atomically: the content goes to a
// temporary file in the destination directory first and is renamed over the
// final path only after permissions and timestamps are in place. The
// destination therefore never holds a partially written file.
func copyFileSafe(srcPath, dstPath string, srcInfo os.FileInfo) (written int64, err error) {
	dstDir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dstDir, util.UserWritableDirPerms); err != nil {
		return 0, fmt.Errorf("failed to create destination directory %s: %w", dstDir, err)
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", srcPath, err)
	}
	defer in.Close()

	out, err := os.CreateTemp(dstDir, "repomirror-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", dstDir, err)
	}
	defer out.Close() // Ensure closed on error.

	tempPath := out.Name()
	// If the rename succeeds, tempPath is cleared and this becomes a no-op.
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	if written, err = io.Copy(out, in); err != nil {
		return written, fmt.Errorf("failed to copy content from %s to %s: %w", srcPath, tempPath, err)
	}

	// The user must always keep write permission on the destination file,
	// even when the source is read-only, or the next run locks itself out.
	if err := out.Chmod(util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
		return written, fmt.Errorf("failed to set permissions on temporary file %s: %w", tempPath, err)
	}

	// Close flushes data to disk. It must happen before Chtimes because
	// closing may itself update the modification time.
	if err := out.Close(); err != nil {
		return written, fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}

	mtime := srcInfo.ModTime()
	if err := os.Chtimes(tempPath, mtime, mtime); err != nil {
		return written, fmt.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}

	// os.Rename is atomic on POSIX and replaces an existing destination.
	if err := os.Rename(tempPath, dstPath); err != nil {
		return written, err
	}

	tempPath = ""
	return written, nil
}
