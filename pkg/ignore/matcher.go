// Package ignore implements gitignore-compatible pattern matching and the
// collection of pattern lines from the scoped sources a mirror run consults:
// job and source excludes, every nested .gitignore below the source root, the
// repository's local exclude file, and the user's global ignore file.
//
// Matching operates on forward-slash, source-root-relative paths. Patterns are
// evaluated in declaration order and the last matching pattern wins, so a
// later negation can un-ignore a path and the synthetic '.git/' entry appended
// last can never be overridden.
package ignore

import (
	"strings"

	"mirrorlabs.io/repomirror/pkg/plog"
)

// Matcher is a compiled, immutable set of ignore patterns. It is built once
// per (job, source) pair at the start of a mirror run and is safe for
// concurrent reads.
type Matcher struct {
	patterns []*compiledPattern
}

// Compile builds a Matcher from ordered pattern lines. Blank lines and
// comments are dropped; a line that fails to compile is logged and skipped so
// one malformed user pattern cannot take down the run.
func Compile(lines []string) *Matcher {
	m := &Matcher{patterns: make([]*compiledPattern, 0, len(lines))}
	for _, line := range lines {
		p, err := parsePattern(line)
		if err != nil {
			plog.Warn("Invalid ignore pattern, skipping", "pattern", line, "error", err)
			continue
		}
		if p == nil {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
	return m
}

// IsIgnored reports whether the given source-root-relative path is excluded.
// Directory candidates are matched with a trailing slash so directory-only
// patterns apply. The source root itself is never ignored.
func (m *Matcher) IsIgnored(relPath string, isDir bool) bool {
	candidate := normalizeCandidate(relPath)
	if candidate == "" {
		return false
	}
	if isDir {
		candidate += "/"
	}

	ignored := false
	for _, p := range m.patterns {
		if p.re.MatchString(candidate) {
			ignored = !p.negated
		}
	}
	return ignored
}

// Len returns the number of compiled patterns. Used for logging.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// normalizeCandidate maps any relative path spelling onto the canonical
// forward-slash key format patterns are compiled against.
func normalizeCandidate(relPath string) string {
	s := strings.ReplaceAll(relPath, "\\", "/")
	s = strings.TrimPrefix(s, "./")
	s = strings.Trim(s, "/")
	if s == "." {
		return ""
	}
	return s
}
