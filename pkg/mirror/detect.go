package mirror

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"mirrorlabs.io/repomirror/pkg/config"
)

// hashBufferSize is the read chunk used when streaming file digests.
const hashBufferSize = 1 * 1024 * 1024

// needsCopy decides whether the destination file must be (re)written. A
// missing destination always needs a copy; otherwise the configured comparison
// policy is applied.
func needsCopy(srcPath, dstPath string, srcInfo os.FileInfo, mode config.CompareMode) (bool, error) {
	dstInfo, err := os.Stat(dstPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to stat destination file %s: %w", dstPath, err)
	}
	if dstInfo.IsDir() {
		// A directory occupying the file's destination path is always stale.
		return true, nil
	}

	switch mode {
	case config.CompareSize:
		return srcInfo.Size() != dstInfo.Size(), nil

	case config.CompareHash:
		if srcInfo.Size() != dstInfo.Size() {
			return true, nil
		}
		srcSum, err := hashFile(srcPath)
		if err != nil {
			return false, err
		}
		dstSum, err := hashFile(dstPath)
		if err != nil {
			return false, err
		}
		return !bytes.Equal(srcSum, dstSum), nil

	default: // config.CompareMTimeSize
		if srcInfo.Size() != dstInfo.Size() {
			return true, nil
		}
		// Whole-second granularity tolerates filesystems that truncate
		// timestamps, at the cost of missing a same-second rewrite that
		// keeps the size identical.
		return srcInfo.ModTime().Unix() != dstInfo.ModTime().Unix(), nil
	}
}

// hashFile streams a SHA-256 digest of the file at path. Files are never read
// fully into memory.
func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
