package ignore

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mirrorlabs.io/repomirror/pkg/plog"
	"mirrorlabs.io/repomirror/pkg/util"
)

// CollectOptions names the scoped origins that contribute pattern lines for
// one (job, source) pair.
type CollectOptions struct {
	// SourceRoot is the absolute source directory being mirrored.
	SourceRoot string
	// JobExcludes are the job-level exclude patterns, highest in the file but
	// lowest in precedence (later entries can negate them).
	JobExcludes []string
	// SourceExcludes are the source-scoped exclude patterns.
	SourceExcludes []string
	// IncludeGitInfoExclude reads <source>/.git/info/exclude.
	IncludeGitInfoExclude bool
	// IncludeGlobalGitIgnore reads the user's global ignore file.
	IncludeGlobalGitIgnore bool
}

// Collect gathers the ordered pattern list for one mirror run. Order is
// load-bearing: the matcher gives the last matching pattern the final word,
// and the synthetic '.git/' exclusion is appended after everything else so
// version-control metadata can never be un-ignored.
//
// Unreadable pattern sources (missing files, permission errors) contribute
// zero patterns and never fail the collection.
func Collect(opts CollectOptions) []string {
	var patterns []string
	patterns = append(patterns, opts.JobExcludes...)
	patterns = append(patterns, opts.SourceExcludes...)

	patterns = append(patterns, collectNestedGitignores(opts.SourceRoot)...)

	if opts.IncludeGitInfoExclude {
		patterns = append(patterns, readIgnoreLines(filepath.Join(opts.SourceRoot, ".git", "info", "exclude"))...)
	}

	if opts.IncludeGlobalGitIgnore {
		if global := globalGitIgnorePath(); global != "" {
			patterns = append(patterns, readIgnoreLines(global)...)
		}
	}

	patterns = append(patterns, ".git/")
	return patterns
}

// CollectAndCompile is the common path for callers that only want the matcher.
func CollectAndCompile(opts CollectOptions) *Matcher {
	return Compile(Collect(opts))
}

// collectNestedGitignores walks every subdirectory of the source root looking
// for .gitignore files, skipping the .git directory itself. Each found
// pattern is rewritten relative to the source root so a nested .gitignore only
// affects paths under its own directory, while the matcher still sees a single
// flat, ordered list.
func collectNestedGitignores(sourceRoot string) []string {
	var patterns []string
	walkErr := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: contributes nothing.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}

		relDir, relErr := util.NormalizedRel(sourceRoot, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if relDir == "." {
			relDir = ""
		}
		for _, line := range readIgnoreLines(path) {
			if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			patterns = append(patterns, prefixPattern(relDir, line))
		}
		return nil
	})
	if walkErr != nil {
		plog.Warn("Failed to scan for nested .gitignore files", "source", sourceRoot, "error", walkErr)
	}
	return patterns
}

// prefixPattern rewrites a pattern declared in a nested .gitignore so it is
// anchored relative to the source root instead of its own directory. Negation
// is rewritten on the un-negated core and then reattached.
func prefixPattern(relDir, pattern string) string {
	if relDir == "" {
		return pattern
	}

	if strings.HasPrefix(pattern, "!") {
		return "!" + prefixPattern(relDir, pattern[1:])
	}

	if strings.HasPrefix(pattern, "/") {
		// Root-anchored within its own .gitignore directory.
		return relDir + pattern
	}
	return relDir + "/" + pattern
}

// readIgnoreLines reads a pattern file best-effort. Missing or unreadable
// files yield no lines.
func readIgnoreLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(text, "\n")
}

// globalGitIgnorePath returns the first existing user-level ignore file, or
// "" when none exists.
func globalGitIgnorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidates := []string{
		filepath.Join(home, ".config", "git", "ignore"),
		filepath.Join(home, ".gitignore_global"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
