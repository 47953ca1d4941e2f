// Package mirror implements the one-way mirror engine: it walks a source
// tree, consults the compiled ignore matcher and the change detector, copies
// changed files atomically into the destination, and optionally deletes
// destination files no longer represented by the source.
package mirror

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mirrorlabs.io/repomirror/pkg/archive"
	"mirrorlabs.io/repomirror/pkg/config"
	"mirrorlabs.io/repomirror/pkg/ignore"
	"mirrorlabs.io/repomirror/pkg/plog"
	"mirrorlabs.io/repomirror/pkg/util"
)

type run struct {
	job    config.Job
	source config.Source
	opts   Options

	srcRoot string
	dstRoot string
	matcher *ignore.Matcher

	// mirrored holds the source-relative path of every file examined and not
	// ignored this run, whether it was copied or skipped as unchanged. The
	// extraneous pass deletes destination files absent from this set.
	mirrored map[string]struct{}

	// visited guards against symlink cycles when followSymlinks is enabled.
	visited map[string]struct{}

	stats Stats
}

// Mirror performs one (job, source) mirror operation and returns its
// statistics. Validation failures surface as errors wrapping
// config.ErrInvalidConfig and happen before any filesystem mutation.
func Mirror(job config.Job, source config.Source, opts Options) (Stats, error) {
	r := &run{
		job:      job,
		source:   source,
		opts:     opts,
		mirrored: make(map[string]struct{}),
	}
	if job.FollowSymlinks {
		r.visited = make(map[string]struct{})
	}

	if err := r.resolveAndValidate(); err != nil {
		return r.stats, err
	}

	if job.CreateTargetDirsIfMissing && !opts.DryRun {
		if err := os.MkdirAll(r.dstRoot, util.UserWritableDirPerms); err != nil {
			return r.stats, fmt.Errorf("failed to create destination root %s: %w", r.dstRoot, err)
		}
	}

	r.matcher = ignore.CollectAndCompile(ignore.CollectOptions{
		SourceRoot:             r.srcRoot,
		JobExcludes:            job.AdditionalExcludes,
		SourceExcludes:         source.AdditionalExcludes,
		IncludeGitInfoExclude:  job.IncludeGitInfoExclude,
		IncludeGlobalGitIgnore: job.IncludeGlobalGitIgnore,
	})
	plog.Debug("Compiled ignore patterns", "source", r.srcRoot, "patterns", r.matcher.Len())

	if err := r.walk(r.srcRoot, ""); err != nil {
		return r.stats, err
	}

	if job.DeleteExtraneous {
		if err := r.deleteExtraneous(); err != nil {
			return r.stats, err
		}
	}

	return r.stats, nil
}

// resolveAndValidate computes the absolute source and destination roots and
// rejects degenerate mappings before anything is touched.
func (r *run) resolveAndValidate() error {
	dst, err := config.ResolveTarget(r.job, r.source)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	srcRoot, err := filepath.Abs(r.source.Source)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve source path %s: %v", config.ErrInvalidConfig, r.source.Source, err)
	}
	dstRoot, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve destination path %s: %v", config.ErrInvalidConfig, dst, err)
	}

	if srcRoot == dstRoot {
		return fmt.Errorf("%w: source and destination are the same directory: %s", config.ErrInvalidConfig, srcRoot)
	}
	if isWithin(srcRoot, dstRoot) {
		return fmt.Errorf("%w: destination %s is inside source %s", config.ErrInvalidConfig, dstRoot, srcRoot)
	}

	info, err := os.Stat(srcRoot)
	if err != nil {
		return fmt.Errorf("%w: source directory does not exist: %s", config.ErrInvalidConfig, srcRoot)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source is not a directory: %s", config.ErrInvalidConfig, srcRoot)
	}

	r.srcRoot = srcRoot
	r.dstRoot = dstRoot
	return nil
}

// isWithin reports whether child sits at or below parent, comparing whole
// path segments rather than raw string prefixes.
func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

// walk recurses through one source directory. relDir is the forward-slash
// path of absDir below the source root, "" for the root itself.
func (r *run) walk(absDir, relDir string) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return r.recordFailure(fmt.Errorf("failed to read directory %s: %w", absDir, err),
			"Failed to read directory", "path", absDir)
	}

	for _, entry := range entries {
		absPath := filepath.Join(absDir, entry.Name())
		relPath := path.Join(relDir, entry.Name())

		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			info, statErr := os.Stat(absPath)
			if statErr != nil {
				if r.matcher.IsIgnored(relPath, false) {
					r.stats.Skipped++
					continue
				}
				if err := r.recordFailure(fmt.Errorf("broken symlink %s: %w", absPath, statErr),
					"Broken symlink", "path", relPath); err != nil {
					return err
				}
				continue
			}
			isDir = info.IsDir()
			// File symlinks are dereferenced and copied as regular files;
			// descent into symlinked directories is opt-in.
			if isDir && !r.job.FollowSymlinks {
				plog.Debug("Not following symlinked directory", "path", relPath)
				continue
			}
		}

		if r.matcher.IsIgnored(relPath, isDir) {
			// Ignored files count as skipped; ignored directories are pruned
			// without visiting (or counting) anything beneath them.
			if !isDir {
				r.stats.Skipped++
			}
			plog.Debug("Ignoring path", "path", relPath, "dir", isDir)
			continue
		}

		if isDir {
			if r.job.FollowSymlinks && !r.markVisited(absPath) {
				plog.Warn("Symlink cycle detected, skipping", "path", relPath)
				continue
			}
			if err := r.walk(absPath, relPath); err != nil {
				return err
			}
			continue
		}

		if err := r.mirrorFile(absPath, relPath); err != nil {
			return err
		}
	}
	return nil
}

// markVisited records the resolved identity of a directory and reports false
// when it was seen before.
func (r *run) markVisited(absDir string) bool {
	resolved, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		resolved = absDir
	}
	if _, seen := r.visited[resolved]; seen {
		return false
	}
	r.visited[resolved] = struct{}{}
	return true
}

// mirrorFile brings one destination file up to date with its source.
func (r *run) mirrorFile(absPath, relPath string) error {
	r.mirrored[relPath] = struct{}{}
	dstPath := filepath.Join(r.dstRoot, filepath.FromSlash(relPath))

	srcInfo, err := os.Stat(absPath)
	if err != nil {
		return r.recordFailure(fmt.Errorf("failed to stat source file %s: %w", absPath, err),
			"Failed to stat source file", "path", relPath)
	}

	need, err := needsCopy(absPath, dstPath, srcInfo, r.job.CompareBy)
	if err != nil {
		return r.recordFailure(err, "Failed to compare file", "path", relPath)
	}
	if !need {
		r.stats.Skipped++
		plog.Debug("SKIP", "path", relPath)
		return nil
	}

	if r.opts.DryRun {
		r.stats.Copied++
		plog.Notice("COPY (dry-run)", "path", relPath, "size", util.ByteCountIEC(srcInfo.Size()))
		return nil
	}

	written, err := copyFileSafe(absPath, dstPath, srcInfo)
	if err != nil {
		return r.recordFailure(err, "Failed to copy file", "path", relPath)
	}
	r.stats.Copied++
	r.stats.BytesCopied += written
	plog.Notice("COPY", "path", relPath, "size", util.ByteCountIEC(written))
	return nil
}

// deleteExtraneous removes destination files whose relative path was not
// produced by this run's walk. The ignore matcher is deliberately not
// consulted here: a file is extraneous whenever the source, under this run's
// rules, no longer represents it.
func (r *run) deleteExtraneous() error {
	if _, err := os.Stat(r.dstRoot); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat destination root %s: %w", r.dstRoot, err)
	}

	extraneous, err := r.findExtraneous()
	if err != nil {
		return err
	}
	if len(extraneous) == 0 {
		return nil
	}

	if r.job.ArchiveExtraneousTo != "" && !r.opts.DryRun {
		format, err := archive.ParseFormat(r.job.ArchiveFormat)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		archivePath, err := archive.Create(r.job.ArchiveExtraneousTo, format, r.dstRoot, extraneous)
		if err != nil {
			return fmt.Errorf("failed to archive extraneous files: %w", err)
		}
		plog.Info("Archived extraneous files before deletion",
			"archive", archivePath, "files", len(extraneous))
	}

	for _, relPath := range extraneous {
		absPath := filepath.Join(r.dstRoot, filepath.FromSlash(relPath))
		if r.opts.DryRun {
			r.stats.Deleted++
			plog.Notice("DELETE (dry-run)", "path", relPath)
			continue
		}
		if err := os.Remove(absPath); err != nil {
			if err := r.recordFailure(fmt.Errorf("failed to delete extraneous file %s: %w", absPath, err),
				"Failed to delete extraneous file", "path", relPath); err != nil {
				return err
			}
			continue
		}
		r.stats.Deleted++
		plog.Notice("DELETE", "path", relPath)
	}
	return nil
}

// findExtraneous walks the destination tree and returns the relative paths of
// files absent from the mirrored path set, in walk order.
func (r *run) findExtraneous() ([]string, error) {
	var extraneous []string
	err := filepath.WalkDir(r.dstRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return r.recordFailure(fmt.Errorf("failed to walk destination %s: %w", p, err),
				"Failed to walk destination", "path", p)
		}
		if d.IsDir() {
			return nil
		}
		relPath, relErr := util.NormalizedRel(r.dstRoot, p)
		if relErr != nil {
			return relErr
		}
		if _, ok := r.mirrored[relPath]; !ok {
			extraneous = append(extraneous, relPath)
		}
		return nil
	})
	return extraneous, err
}

// recordFailure counts one per-file failure. With continue_on_error the error
// is logged and swallowed, otherwise it aborts the run.
func (r *run) recordFailure(err error, msg string, args ...any) error {
	r.stats.Failed++
	plog.Error(msg, append(args, "error", err)...)
	if r.opts.ContinueOnError {
		return nil
	}
	return err
}
