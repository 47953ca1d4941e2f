// Package preflight validates that a (source, destination) pair is in a
// usable state before the mirror engine starts mutating anything. The checks
// are stateless apart from the explicit writable probe.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckSourceAccessible validates that the source path exists and is a
// directory.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckTargetAccessible ensures the destination is usable before a run. It
// gives friendlier errors than letting os.MkdirAll fail later:
//
//  1. If the target exists, it must be a directory.
//  2. If it does not exist, its deepest existing ancestor must be accessible.
//  3. On Unix the deepest existing directory is checked against the root
//     device, so a run cannot silently fill a "ghost" directory left behind
//     by an unmounted drive. Paths under the user's home are exempt.
func CheckTargetAccessible(targetPath string) error {
	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		ancestor := deepestExistingAncestor(targetPath)
		if err := platformValidateMountPoint(ancestor); err != nil {
			return err
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access target path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("target path exists but is not a directory: %s", targetPath)
	}
	return platformValidateMountPoint(targetPath)
}

// CheckTargetWritable verifies the destination can be created and written to
// by creating and removing a probe file.
func CheckTargetWritable(targetPath string) error {
	if err := os.MkdirAll(targetPath, 0755); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", targetPath, err)
	}

	tempFile := filepath.Join(targetPath, ".repomirror-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("target directory %s is not writable: %w", targetPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// deepestExistingAncestor walks up from path and returns the closest
// directory that actually exists.
func deepestExistingAncestor(path string) string {
	ancestor := path
	for {
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return ancestor
		}
		if _, err := os.Stat(parent); err == nil {
			return parent
		}
		ancestor = parent
	}
}
