// Package config loads and validates the declarative job configuration that
// drives mirror runs. Configuration documents are YAML or JSON; once loaded,
// a Job and its Sources are read-only for the duration of a run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mirrorlabs.io/repomirror/pkg/util"
)

// ErrInvalidConfig wraps every configuration document error so callers can map
// it to a dedicated exit code.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultExcludes is used for a job's additionalExcludes when the document
// omits the field entirely (an explicit empty list stays empty).
var DefaultExcludes = []string{
	".git/",
	"venv/",
	".venv/",
	"__pycache__/",
	"*.pyc",
	"build/",
	"dist/",
}

// Source describes one mirrored subtree of a job.
type Source struct {
	// Source is the directory to mirror. Must exist at run time.
	Source string
	// Target, if set, overrides the job's fallback target for this source.
	Target string
	// AdditionalExcludes are source-scoped ignore patterns.
	AdditionalExcludes []string
}

// Job is one logical unit of mirror work. Immutable once loaded for a run.
type Job struct {
	Name                      string
	FallbackTarget            string
	Sources                   []Source
	DeleteExtraneous          bool
	IncludeGitInfoExclude     bool
	IncludeGlobalGitIgnore    bool
	CreateTargetDirsIfMissing bool
	AdditionalExcludes        []string
	FollowSymlinks            bool
	CompareBy                 CompareMode

	// ArchiveExtraneousTo, if set, is a directory that receives a timestamped
	// archive of extraneous destination files before they are deleted.
	ArchiveExtraneousTo string
	// ArchiveFormat selects the archive container: "tar.gz" (default) or "tar.zst".
	ArchiveFormat string
}

// AppConfig is the root of a loaded configuration document.
type AppConfig struct {
	Jobs []Job
}

// Raw document shapes. Bool fields are pointers so absent values can fall back
// to their documented defaults instead of Go's zero value.
type rawSource struct {
	Source             string   `yaml:"source" json:"source"`
	Target             string   `yaml:"target" json:"target"`
	AdditionalExcludes []string `yaml:"additionalExcludes" json:"additionalExcludes"`
}

type rawJob struct {
	Name                      string      `yaml:"name" json:"name"`
	FallbackTarget            string      `yaml:"fallbackTarget" json:"fallbackTarget"`
	Sources                   []rawSource `yaml:"sources" json:"sources"`
	DeleteExtraneous          *bool       `yaml:"deleteExtraneous" json:"deleteExtraneous"`
	IncludeGitInfoExclude     *bool       `yaml:"includeGitInfoExclude" json:"includeGitInfoExclude"`
	IncludeGlobalGitIgnore    *bool       `yaml:"includeGlobalGitIgnore" json:"includeGlobalGitIgnore"`
	CreateTargetDirsIfMissing *bool       `yaml:"createTargetDirsIfMissing" json:"createTargetDirsIfMissing"`
	AdditionalExcludes        []string    `yaml:"additionalExcludes" json:"additionalExcludes"`
	FollowSymlinks            *bool       `yaml:"followSymlinks" json:"followSymlinks"`
	CompareBy                 string      `yaml:"compareBy" json:"compareBy"`
	ArchiveExtraneousTo       string      `yaml:"archiveExtraneousTo" json:"archiveExtraneousTo"`
	ArchiveFormat             string      `yaml:"archiveFormat" json:"archiveFormat"`
}

type rawConfig struct {
	Jobs []rawJob `yaml:"jobs" json:"jobs"`
}

// Load reads, parses and validates a configuration file. The format is chosen
// by file extension: .yaml/.yml or .json.
func Load(configPath string) (*AppConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", ErrInvalidConfig, configPath, err)
	}

	var raw rawConfig
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, configPath, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, configPath, err)
		}
	default:
		return nil, fmt.Errorf("%w: config file must be .yaml/.yml or .json: %s", ErrInvalidConfig, configPath)
	}

	return buildConfig(raw)
}

func buildConfig(raw rawConfig) (*AppConfig, error) {
	if len(raw.Jobs) == 0 {
		return nil, fmt.Errorf("%w: config must contain a non-empty 'jobs' list", ErrInvalidConfig)
	}

	cfg := &AppConfig{Jobs: make([]Job, 0, len(raw.Jobs))}
	names := make(map[string]struct{}, len(raw.Jobs))

	for i, rj := range raw.Jobs {
		job, err := buildJob(i, rj)
		if err != nil {
			return nil, err
		}
		if _, dup := names[job.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate job name: %s", ErrInvalidConfig, job.Name)
		}
		names[job.Name] = struct{}{}
		cfg.Jobs = append(cfg.Jobs, job)
	}
	return cfg, nil
}

func buildJob(index int, rj rawJob) (Job, error) {
	if strings.TrimSpace(rj.Name) == "" {
		return Job{}, fmt.Errorf("%w: jobs[%d].name must be a non-empty string", ErrInvalidConfig, index)
	}

	fallbackTarget, err := asPath(rj.FallbackTarget, fmt.Sprintf("jobs[%d].fallbackTarget", index))
	if err != nil {
		return Job{}, err
	}

	if len(rj.Sources) == 0 {
		return Job{}, fmt.Errorf("%w: jobs[%d].sources must be a non-empty list", ErrInvalidConfig, index)
	}
	sources := make([]Source, 0, len(rj.Sources))
	for si, rs := range rj.Sources {
		sourcePath, err := asPath(rs.Source, fmt.Sprintf("jobs[%d].sources[%d].source", index, si))
		if err != nil {
			return Job{}, err
		}
		targetPath := ""
		if strings.TrimSpace(rs.Target) != "" {
			targetPath, err = asPath(rs.Target, fmt.Sprintf("jobs[%d].sources[%d].target", index, si))
			if err != nil {
				return Job{}, err
			}
		}
		sources = append(sources, Source{
			Source:             sourcePath,
			Target:             targetPath,
			AdditionalExcludes: cleanPatternList(rs.AdditionalExcludes),
		})
	}

	compareBy := CompareMTimeSize
	if rj.CompareBy != "" {
		compareBy, err = ParseCompareMode(rj.CompareBy)
		if err != nil {
			return Job{}, fmt.Errorf("%w: jobs[%d]: %v", ErrInvalidConfig, index, err)
		}
	}

	additionalExcludes := cleanPatternList(rj.AdditionalExcludes)
	if rj.AdditionalExcludes == nil {
		additionalExcludes = append([]string(nil), DefaultExcludes...)
	}

	archiveExtraneousTo := ""
	if strings.TrimSpace(rj.ArchiveExtraneousTo) != "" {
		archiveExtraneousTo, err = asPath(rj.ArchiveExtraneousTo, fmt.Sprintf("jobs[%d].archiveExtraneousTo", index))
		if err != nil {
			return Job{}, err
		}
	}
	archiveFormat := strings.TrimSpace(rj.ArchiveFormat)
	if archiveFormat != "" && archiveFormat != "tar.gz" && archiveFormat != "tar.zst" {
		return Job{}, fmt.Errorf("%w: jobs[%d].archiveFormat must be 'tar.gz' or 'tar.zst'", ErrInvalidConfig, index)
	}

	return Job{
		Name:                      rj.Name,
		FallbackTarget:            fallbackTarget,
		Sources:                   sources,
		DeleteExtraneous:          boolOr(rj.DeleteExtraneous, false),
		IncludeGitInfoExclude:     boolOr(rj.IncludeGitInfoExclude, true),
		IncludeGlobalGitIgnore:    boolOr(rj.IncludeGlobalGitIgnore, false),
		CreateTargetDirsIfMissing: boolOr(rj.CreateTargetDirsIfMissing, false),
		AdditionalExcludes:        additionalExcludes,
		FollowSymlinks:            boolOr(rj.FollowSymlinks, false),
		CompareBy:                 compareBy,
		ArchiveExtraneousTo:       archiveExtraneousTo,
		ArchiveFormat:             archiveFormat,
	}, nil
}

// ResolveTarget resolves the effective destination directory for a source:
// the explicit target when set, otherwise fallbackTarget/<source basename>.
func ResolveTarget(job Job, source Source) (string, error) {
	if source.Target != "" {
		return source.Target, nil
	}
	base := filepath.Base(filepath.Clean(source.Source))
	if base == "." || base == string(filepath.Separator) || base == "/" {
		return "", fmt.Errorf("cannot infer source name for fallback target: %s", source.Source)
	}
	return filepath.Join(job.FallbackTarget, base), nil
}

func asPath(value, fieldName string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string path", ErrInvalidConfig, fieldName)
	}
	expanded, err := util.ExpandPath(value)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidConfig, fieldName, err)
	}
	return expanded, nil
}

func cleanPatternList(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
