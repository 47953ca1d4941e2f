// Package runner executes mirror operations for the (job, source) pairs
// selected by the active filters, serializing conflicting destinations with
// file locks and optionally running disjoint pairs in parallel.
package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"mirrorlabs.io/repomirror/pkg/config"
	"mirrorlabs.io/repomirror/pkg/mirror"
	"mirrorlabs.io/repomirror/pkg/plog"
	"mirrorlabs.io/repomirror/pkg/preflight"
	"mirrorlabs.io/repomirror/pkg/settings"
	"mirrorlabs.io/repomirror/pkg/util"
)

// Params selects and parameterizes the pairs of one run.
type Params struct {
	Config          *config.AppConfig
	JobFilter       string
	SourceFilter    string
	DryRun          bool
	ContinueOnError bool

	// Parallel is the number of (job, source) pairs mirrored concurrently.
	// Values below 1 mean sequential. Each single pair stays single-threaded.
	Parallel int

	// LockDir overrides the default lock directory. Tests use this.
	LockDir string
}

// Summary aggregates the outcome of one run across all its pairs.
type Summary struct {
	Pairs       int
	PairsFailed int
	Stats       mirror.Stats

	// aborted is set when a pair error stopped the run under fail-fast.
	aborted bool
	// partial is set when anything failed but the run kept going: a pair
	// error under continue-on-error, a source filter that matched nothing
	// in a job, or per-file failures.
	partial bool
}

// Exit codes of the command-line tool.
const (
	ExitOK            = 0
	ExitRuntimeError  = 1
	ExitPartialFailed = 2
	ExitInvalidConfig = 3
)

// ExitCode maps the summary onto the process exit code.
func (s *Summary) ExitCode() int {
	switch {
	case s.aborted:
		return ExitRuntimeError
	case s.partial || s.Stats.HasFailures():
		return ExitPartialFailed
	default:
		return ExitOK
	}
}

type pair struct {
	job    config.Job
	source config.Source
}

// Run mirrors every selected (job, source) pair and returns the aggregated
// summary. The returned error is non-nil only when the job filter matches
// nothing or the lock directory cannot be prepared; per-pair errors are
// folded into the summary.
func Run(ctx context.Context, p Params) (*Summary, error) {
	summary := &Summary{}

	pairs, err := selectPairs(p, summary)
	if err != nil {
		return nil, err
	}
	summary.Pairs = len(pairs)

	lockDir, err := resolveLockDir(p.LockDir)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex

	parallel := p.Parallel
	if parallel < 1 {
		parallel = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for _, pr := range pairs {
		pr := pr
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stats, err := runPair(pr, p, lockDir)

			mu.Lock()
			defer mu.Unlock()
			summary.Stats.Add(stats)
			if err != nil {
				summary.PairsFailed++
				plog.Error("Mirror operation failed",
					"job", pr.job.Name, "source", pr.source.Source, "error", err)
				if !p.ContinueOnError {
					summary.aborted = true
					return err
				}
				summary.partial = true
			}
			return nil
		})
	}

	// Per-pair errors are already folded into the summary; with fail-fast the
	// first error also cancels the pairs still queued.
	_ = g.Wait()
	return summary, nil
}

// selectPairs applies the job and source filters. A job filter matching no
// job is an error; a source filter matching nothing within a selected job is
// a partial failure for that job, and the remaining jobs still run.
func selectPairs(p Params, summary *Summary) ([]pair, error) {
	jobs, err := config.SelectJobs(p.Config, p.JobFilter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	var pairs []pair
	for _, job := range jobs {
		sources, err := config.SelectSources(job, p.SourceFilter)
		if err != nil {
			plog.Error("Source selection failed", "job", job.Name, "error", err)
			summary.partial = true
			continue
		}
		for _, src := range sources {
			pairs = append(pairs, pair{job: job, source: src})
		}
	}
	return pairs, nil
}

// runPair performs preflight, takes the destination lock, and mirrors one
// pair.
func runPair(pr pair, p Params, lockDir string) (mirror.Stats, error) {
	dst, err := config.ResolveTarget(pr.job, pr.source)
	if err != nil {
		return mirror.Stats{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	if err := preflight.CheckSourceAccessible(pr.source.Source); err != nil {
		return mirror.Stats{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if err := preflight.CheckTargetAccessible(dst); err != nil {
		return mirror.Stats{}, err
	}
	if free, err := preflight.FreeSpace(deepestExisting(dst)); err == nil {
		plog.Debug("Destination free space",
			"destination", dst, "free", util.ByteCountIEC(int64(free)))
	}

	// One lock per destination path. Two pairs writing the same destination
	// serialize; an already-running agent or CLI invocation is skipped with
	// an error instead of interleaving writes.
	lock := flock.New(lockPath(lockDir, dst))
	locked, err := lock.TryLock()
	if err != nil {
		return mirror.Stats{}, fmt.Errorf("failed to acquire lock for %s: %w", dst, err)
	}
	if !locked {
		return mirror.Stats{}, fmt.Errorf("destination %s is locked by another run", dst)
	}
	defer lock.Unlock()

	plog.Info("Mirroring",
		"job", pr.job.Name, "source", pr.source.Source, "destination", dst, "dryRun", p.DryRun)

	stats, err := mirror.Mirror(pr.job, pr.source, mirror.Options{
		DryRun:          p.DryRun,
		ContinueOnError: p.ContinueOnError,
	})
	if err == nil {
		plog.Info("Mirror finished",
			"job", pr.job.Name, "source", pr.source.Source,
			"copied", stats.Copied, "skipped", stats.Skipped,
			"deleted", stats.Deleted, "failed", stats.Failed,
			"bytes", util.ByteCountIEC(stats.BytesCopied))
	}
	return stats, err
}

// resolveLockDir returns the lock directory, defaulting to
// <state dir>/locks, and creates it.
func resolveLockDir(override string) (string, error) {
	dir := override
	if dir == "" {
		stateDir, err := settings.StateDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(stateDir, "locks")
	}
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return "", fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}
	return dir, nil
}

// lockPath derives a stable lock file name from the destination path.
func lockPath(lockDir, dst string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(dst)))
	return filepath.Join(lockDir, hex.EncodeToString(sum[:8])+".lock")
}

// deepestExisting walks up from path to the closest existing directory, so
// free-space queries work for destinations that are yet to be created.
func deepestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
