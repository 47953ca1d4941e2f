package mirror

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorlabs.io/repomirror/pkg/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// testJob returns a job with one source mirroring src into dst, with the
// defaults most tests want: explicit empty excludes and auto-created target.
func testJob(src, dst string) (config.Job, config.Source) {
	source := config.Source{Source: src, Target: dst}
	job := config.Job{
		Name:                      "test",
		FallbackTarget:            filepath.Dir(dst),
		Sources:                   []config.Source{source},
		IncludeGitInfoExclude:     true,
		CreateTargetDirsIfMissing: true,
		CompareBy:                 config.CompareMTimeSize,
	}
	return job, source
}

func TestMirrorCopiesTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "beta")

	job, source := testJob(src, dst)
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Copied)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, "alpha", readFile(t, filepath.Join(dst, "a.txt")))
	assert.Equal(t, "beta", readFile(t, filepath.Join(dst, "sub", "b.txt")))
}

func TestMirrorSecondRunSkipsUnchanged(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Copied)
	assert.Equal(t, 1, stats.Skipped)
}

func TestMirrorRecopiesChangedFile(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	srcFile := filepath.Join(src, "a.txt")
	writeFile(t, srcFile, "alpha")

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	writeFile(t, srcFile, "alpha-v2")
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, "alpha-v2", readFile(t, filepath.Join(dst, "a.txt")))
}

func TestMirrorCreatesNestedDestinationDirs(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "deep", "deeper", "deepest", "leaf.txt"), "x")

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.True(t, exists(filepath.Join(dst, "deep", "deeper", "deepest", "leaf.txt")))
}

func TestMirrorHonorsGitignore(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, ".gitignore"), "*.log\nbuild/\n")
	writeFile(t, filepath.Join(src, "keep.txt"), "keep")
	writeFile(t, filepath.Join(src, "debug.log"), "noise")
	writeFile(t, filepath.Join(src, "build", "out.bin"), "bin")

	job, source := testJob(src, dst)
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.True(t, exists(filepath.Join(dst, "keep.txt")))
	assert.True(t, exists(filepath.Join(dst, ".gitignore")), "the ignore file itself is mirrored")
	assert.False(t, exists(filepath.Join(dst, "debug.log")))
	assert.False(t, exists(filepath.Join(dst, "build")))
	assert.Equal(t, 2, stats.Copied)
	assert.Equal(t, 1, stats.Skipped, "ignored file counts as skipped, pruned dir contents do not")
}

func TestMirrorNegationUnIgnores(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, ".gitignore"), "*.log\n!important.log\n")
	writeFile(t, filepath.Join(src, "debug.log"), "noise")
	writeFile(t, filepath.Join(src, "important.log"), "keep me")

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.False(t, exists(filepath.Join(dst, "debug.log")))
	assert.True(t, exists(filepath.Join(dst, "important.log")))
}

func TestMirrorGitDirNeverCopied(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, ".git", "config"), "[core]")
	writeFile(t, filepath.Join(src, ".gitignore"), "!.git\n!.git/\n")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.False(t, exists(filepath.Join(dst, ".git")), "user excludes cannot un-ignore .git")
	assert.True(t, exists(filepath.Join(dst, "a.txt")))
}

func TestMirrorJobExcludes(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "__pycache__", "mod.pyc"), "cache")
	writeFile(t, filepath.Join(src, "main.py"), "print()")

	job, source := testJob(src, dst)
	job.AdditionalExcludes = append([]string(nil), config.DefaultExcludes...)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.False(t, exists(filepath.Join(dst, "__pycache__")))
	assert.True(t, exists(filepath.Join(dst, "main.py")))
}

func TestMirrorDeleteExtraneous(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "stale.txt"), "old")
	writeFile(t, filepath.Join(dst, "sub", "stale2.txt"), "old")

	job, source := testJob(src, dst)
	job.DeleteExtraneous = true
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Deleted)
	assert.False(t, exists(filepath.Join(dst, "stale.txt")))
	assert.False(t, exists(filepath.Join(dst, "sub", "stale2.txt")))
	assert.True(t, exists(filepath.Join(dst, "a.txt")))
}

func TestMirrorDeleteExtraneousDisabledByDefault(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "stale.txt"), "old")

	job, source := testJob(src, dst)
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Deleted)
	assert.True(t, exists(filepath.Join(dst, "stale.txt")))
}

func TestMirrorNewlyIgnoredFileBecomesExtraneous(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "data.tmp"), "temp")

	job, source := testJob(src, dst)
	job.DeleteExtraneous = true
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	require.True(t, exists(filepath.Join(dst, "data.tmp")))

	// The file still exists in source but is now ignored, so the mirror no
	// longer represents it and the destination copy is deleted.
	writeFile(t, filepath.Join(src, ".gitignore"), "*.tmp\n")
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.False(t, exists(filepath.Join(dst, "data.tmp")))
}

func TestMirrorSkippedFilesAreNotExtraneous(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")

	job, source := testJob(src, dst)
	job.DeleteExtraneous = true
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Deleted)
	assert.True(t, exists(filepath.Join(dst, "a.txt")))
}

func TestMirrorDryRun(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "stale.txt"), "old")

	job, source := testJob(src, dst)
	job.DeleteExtraneous = true
	stats, err := Mirror(job, source, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, int64(0), stats.BytesCopied)
	assert.False(t, exists(filepath.Join(dst, "a.txt")), "dry-run copies nothing")
	assert.True(t, exists(filepath.Join(dst, "stale.txt")), "dry-run deletes nothing")
}

func TestMirrorValidation(t *testing.T) {
	src := t.TempDir()

	t.Run("equal source and destination", func(t *testing.T) {
		job, source := testJob(src, src)
		_, err := Mirror(job, source, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("destination inside source", func(t *testing.T) {
		job, source := testJob(src, filepath.Join(src, "mirror"))
		_, err := Mirror(job, source, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("sibling with common name prefix is allowed", func(t *testing.T) {
		parent := t.TempDir()
		srcDir := filepath.Join(parent, "data")
		writeFile(t, filepath.Join(srcDir, "a.txt"), "x")
		job, source := testJob(srcDir, filepath.Join(parent, "data-mirror"))
		_, err := Mirror(job, source, Options{})
		require.NoError(t, err)
	})

	t.Run("missing source", func(t *testing.T) {
		job, source := testJob(filepath.Join(src, "nope"), filepath.Join(t.TempDir(), "mirror"))
		_, err := Mirror(job, source, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("source is a file", func(t *testing.T) {
		file := filepath.Join(src, "plain.txt")
		writeFile(t, file, "x")
		job, source := testJob(file, filepath.Join(t.TempDir(), "mirror"))
		_, err := Mirror(job, source, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestMirrorMissingTargetWithoutCreateFlag(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	dst := filepath.Join(t.TempDir(), "missing", "mirror")

	job, source := testJob(src, dst)
	job.CreateTargetDirsIfMissing = false
	stats, err := Mirror(job, source, Options{ContinueOnError: true})
	require.NoError(t, err)

	// Copies still create their parent directories on demand.
	assert.Equal(t, 1, stats.Copied)
	assert.True(t, exists(filepath.Join(dst, "a.txt")))
}

func TestMirrorPreservesMtimeAndSkipsOnSecondGranularity(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	srcFile := filepath.Join(src, "a.txt")
	writeFile(t, srcFile, "alpha")

	past := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(srcFile, past, past))

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	dstInfo, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, past.Unix(), dstInfo.ModTime().Unix())

	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
}

func TestMirrorCompareByHash(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	srcFile := filepath.Join(src, "a.txt")
	writeFile(t, srcFile, "alpha")

	job, source := testJob(src, dst)
	job.CompareBy = config.CompareHash
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	// Same size, same mtime, different content: only hash comparison
	// notices the change.
	dstFile := filepath.Join(dst, "a.txt")
	writeFile(t, srcFile, "bravo")
	dstInfo, err := os.Stat(dstFile)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(srcFile, dstInfo.ModTime(), dstInfo.ModTime()))

	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, "bravo", readFile(t, dstFile))
}

func TestMirrorCompareBySize(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	srcFile := filepath.Join(src, "a.txt")
	writeFile(t, srcFile, "alpha")

	job, source := testJob(src, dst)
	job.CompareBy = config.CompareSize
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	// Same-size rewrite goes unnoticed under size comparison.
	writeFile(t, srcFile, "bravo")
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, "alpha", readFile(t, filepath.Join(dst, "a.txt")))
}

func TestMirrorContinueOnError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission restrictions do not apply to root")
	}
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "locked", "hidden.txt"), "x")
	writeFile(t, filepath.Join(src, "z-visible.txt"), "x")
	require.NoError(t, os.Chmod(filepath.Join(src, "locked"), 0o000))
	t.Cleanup(func() { os.Chmod(filepath.Join(src, "locked"), 0o755) })

	job, source := testJob(src, dst)
	stats, err := Mirror(job, source, Options{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.True(t, exists(filepath.Join(dst, "z-visible.txt")), "walk continues past failures")
}

func TestMirrorFailFastByDefault(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission restrictions do not apply to root")
	}
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "locked", "hidden.txt"), "x")
	require.NoError(t, os.Chmod(filepath.Join(src, "locked"), 0o000))
	t.Cleanup(func() { os.Chmod(filepath.Join(src, "locked"), 0o755) })

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.Error(t, err)
}

func TestMirrorSymlinks(t *testing.T) {
	src := t.TempDir()
	linkedData := t.TempDir()
	writeFile(t, filepath.Join(linkedData, "inside.txt"), "linked")
	writeFile(t, filepath.Join(src, "plain.txt"), "plain")
	require.NoError(t, os.Symlink(linkedData, filepath.Join(src, "link")))
	require.NoError(t, os.Symlink(filepath.Join(src, "plain.txt"), filepath.Join(src, "filelink.txt")))

	t.Run("directory symlink not followed by default", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "mirror")
		job, source := testJob(src, dst)
		_, err := Mirror(job, source, Options{})
		require.NoError(t, err)
		assert.False(t, exists(filepath.Join(dst, "link")))
		assert.True(t, exists(filepath.Join(dst, "plain.txt")))
	})

	t.Run("file symlink is dereferenced", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "mirror")
		job, source := testJob(src, dst)
		_, err := Mirror(job, source, Options{})
		require.NoError(t, err)
		assert.Equal(t, "plain", readFile(t, filepath.Join(dst, "filelink.txt")))
		info, err := os.Lstat(filepath.Join(dst, "filelink.txt"))
		require.NoError(t, err)
		assert.True(t, info.Mode().IsRegular(), "destination holds file content, not a link")
	})

	t.Run("followed when enabled", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "mirror")
		job, source := testJob(src, dst)
		job.FollowSymlinks = true
		_, err := Mirror(job, source, Options{})
		require.NoError(t, err)
		assert.Equal(t, "linked", readFile(t, filepath.Join(dst, "link", "inside.txt")))
	})
}

func TestMirrorArchivesExtraneousBeforeDeletion(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	archiveDir := filepath.Join(t.TempDir(), "trash")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "stale.txt"), "old")

	job, source := testJob(src, dst)
	job.DeleteExtraneous = true
	job.ArchiveExtraneousTo = archiveDir
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Deleted)
	assert.False(t, exists(filepath.Join(dst, "stale.txt")))

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "extraneous-")
	assert.Contains(t, entries[0].Name(), ".tar.gz")
}

func TestMirrorDryRunScenarioCounts(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, ".gitignore"), "ignored.log\nsubdir/ignored.txt\n")
	writeFile(t, filepath.Join(src, "keep.txt"), "k")
	writeFile(t, filepath.Join(src, "ignored.log"), "i")
	writeFile(t, filepath.Join(src, "subdir", "kept.txt"), "k")
	writeFile(t, filepath.Join(src, "subdir", "ignored.txt"), "i")

	job, source := testJob(src, dst)
	job.CreateTargetDirsIfMissing = false
	stats, err := Mirror(job, source, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Copied)
	assert.Equal(t, 2, stats.Skipped)
	assert.False(t, exists(dst), "dry-run creates nothing on disk")
}

func TestMirrorGitContentsExcludedButGitignoreCopied(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, ".gitignore"), "*.tmp\n")
	writeFile(t, filepath.Join(src, "app.py"), "print()")
	writeFile(t, filepath.Join(src, "notes.tmp"), "scratch")
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref: refs/heads/main")

	job, source := testJob(src, dst)
	stats, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Copied)
	assert.True(t, exists(filepath.Join(dst, "app.py")))
	assert.True(t, exists(filepath.Join(dst, ".gitignore")))
	assert.False(t, exists(filepath.Join(dst, "notes.tmp")))
	assert.False(t, exists(filepath.Join(dst, ".git")))
}

func TestMirrorEmptySourceTargetCreation(t *testing.T) {
	t.Run("destination root created when enabled", func(t *testing.T) {
		src := t.TempDir()
		dst := filepath.Join(t.TempDir(), "mirror")
		job, source := testJob(src, dst)
		stats, err := Mirror(job, source, Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Copied)
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("destination root untouched when disabled", func(t *testing.T) {
		src := t.TempDir()
		dst := filepath.Join(t.TempDir(), "mirror")
		job, source := testJob(src, dst)
		job.CreateTargetDirsIfMissing = false
		stats, err := Mirror(job, source, Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Copied)
		assert.False(t, exists(dst))
	})
}

func TestMirrorNestedIgnoreScopeContainment(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, filepath.Join(src, "repoA", ".gitignore"), "build/\n")
	writeFile(t, filepath.Join(src, "repoA", "build", "out.bin"), "a")
	writeFile(t, filepath.Join(src, "repoB", "build", "out.bin"), "b")

	job, source := testJob(src, dst)
	_, err := Mirror(job, source, Options{})
	require.NoError(t, err)

	assert.False(t, exists(filepath.Join(dst, "repoA", "build")))
	assert.True(t, exists(filepath.Join(dst, "repoB", "build", "out.bin")))
}

func TestStatsAdd(t *testing.T) {
	total := Stats{}
	total.Add(Stats{Copied: 2, Skipped: 1, BytesCopied: 10})
	total.Add(Stats{Deleted: 3, Failed: 1, BytesCopied: 5})

	assert.Equal(t, Stats{Copied: 2, Skipped: 1, Deleted: 3, Failed: 1, BytesCopied: 15}, total)
}
