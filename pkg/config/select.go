package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SelectJobs returns the jobs matching the given name filter. An empty filter
// selects every job.
func SelectJobs(cfg *AppConfig, jobFilter string) ([]Job, error) {
	if strings.TrimSpace(jobFilter) == "" {
		return cfg.Jobs, nil
	}
	for _, job := range cfg.Jobs {
		if job.Name == jobFilter {
			return []Job{job}, nil
		}
	}
	return nil, fmt.Errorf("no job named '%s' in config", jobFilter)
}

// SelectSources narrows a job's sources by a filter string. Matching is tried
// in order: exact configured path, source basename, then a doublestar glob
// against the configured path. A basename shared by multiple sources is
// rejected as ambiguous rather than silently picking one.
func SelectSources(job Job, sourceFilter string) ([]Source, error) {
	if strings.TrimSpace(sourceFilter) == "" {
		return job.Sources, nil
	}

	for _, src := range job.Sources {
		if src.Source == sourceFilter {
			return []Source{src}, nil
		}
	}

	var byBase []Source
	for _, src := range job.Sources {
		if filepath.Base(src.Source) == sourceFilter {
			byBase = append(byBase, src)
		}
	}
	if len(byBase) == 1 {
		return byBase, nil
	}
	if len(byBase) > 1 {
		return nil, fmt.Errorf("source filter '%s' is ambiguous; use full source path", sourceFilter)
	}

	if pattern := filepath.ToSlash(sourceFilter); doublestar.ValidatePattern(pattern) {
		var byGlob []Source
		for _, src := range job.Sources {
			ok, err := doublestar.Match(pattern, filepath.ToSlash(src.Source))
			if err == nil && ok {
				byGlob = append(byGlob, src)
			}
		}
		if len(byGlob) > 0 {
			return byGlob, nil
		}
	}

	return nil, fmt.Errorf("no source matching '%s' in job '%s'", sourceFilter, job.Name)
}
