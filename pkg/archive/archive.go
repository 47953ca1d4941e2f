// Package archive writes compressed tarballs of destination files that are
// about to be deleted, giving a mirror run an undo buffer without keeping a
// versioned history.
package archive

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"mirrorlabs.io/repomirror/pkg/util"
)

const writeBufferSize = 1 * 1024 * 1024

// Create writes a timestamped archive under destDir containing the given
// baseDir-relative files, and returns the final archive path. The archive is
// assembled in a temporary file and renamed into place only when complete, so
// destDir never holds a truncated tarball.
func Create(destDir string, format Format, baseDir string, relPaths []string) (string, error) {
	if len(relPaths) == 0 {
		return "", fmt.Errorf("nothing to archive")
	}

	if err := os.MkdirAll(destDir, util.UserWritableDirPerms); err != nil {
		return "", fmt.Errorf("failed to create archive directory %s: %w", destDir, err)
	}

	name := "extraneous-" + time.Now().Format("20060102-150405") + format.Extension()
	archivePath := filepath.Join(destDir, name)

	tmp, err := os.CreateTemp(destDir, "repomirror-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp archive: %w", err)
	}
	tempPath := tmp.Name()
	defer func() {
		if tempPath != "" {
			tmp.Close()
			os.Remove(tempPath)
		}
	}()

	if err := writeTar(tmp, format, baseDir, relPaths); err != nil {
		return "", err
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err := os.Rename(tempPath, archivePath); err != nil {
		return "", fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}
	tempPath = ""
	return archivePath, nil
}

func writeTar(w io.Writer, format Format, baseDir string, relPaths []string) (retErr error) {
	bufWriter := bufio.NewWriterSize(w, writeBufferSize)

	var compressedWriter io.WriteCloser
	switch format {
	case TarZst:
		zstdWriter, err := zstd.NewWriter(bufWriter)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressedWriter = zstdWriter
	default:
		pgzipWriter, err := pgzip.NewWriterLevel(bufWriter, pgzip.DefaultCompression)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		compressedWriter = pgzipWriter
	}

	tarWriter := tar.NewWriter(compressedWriter)

	defer func() {
		if err := tarWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := compressedWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	for _, relPath := range relPaths {
		if err := writeFile(tarWriter, baseDir, relPath); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(tw *tar.Writer, baseDir, relPath string) error {
	absPath := filepath.Join(baseDir, filepath.FromSlash(relPath))

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", absPath, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", relPath, err)
	}
	header.Name = relPath

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", relPath, err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", relPath, err)
	}
	return nil
}
