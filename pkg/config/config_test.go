package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAMLDefaults(t *testing.T) {
	path := writeConfig(t, "jobs.yaml", `
jobs:
  - name: notes
    fallbackTarget: /backup
    sources:
      - source: /data/notes
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 1)

	job := cfg.Jobs[0]
	assert.Equal(t, "notes", job.Name)
	assert.Equal(t, "/backup", job.FallbackTarget)
	assert.False(t, job.DeleteExtraneous)
	assert.True(t, job.IncludeGitInfoExclude)
	assert.False(t, job.IncludeGlobalGitIgnore)
	assert.False(t, job.CreateTargetDirsIfMissing)
	assert.False(t, job.FollowSymlinks)
	assert.Equal(t, CompareMTimeSize, job.CompareBy)
	assert.Equal(t, DefaultExcludes, job.AdditionalExcludes)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "jobs.json", `{
  "jobs": [
    {
      "name": "repos",
      "fallbackTarget": "/mnt/mirror",
      "deleteExtraneous": true,
      "includeGitInfoExclude": false,
      "compareBy": "hash",
      "additionalExcludes": ["*.log"],
      "sources": [
        {"source": "/src/alpha", "target": "/mnt/mirror/custom-alpha"},
        {"source": "/src/beta", "additionalExcludes": ["tmp/"]}
      ]
    }
  ]
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	job := cfg.Jobs[0]
	assert.True(t, job.DeleteExtraneous)
	assert.False(t, job.IncludeGitInfoExclude)
	assert.Equal(t, CompareHash, job.CompareBy)
	assert.Equal(t, []string{"*.log"}, job.AdditionalExcludes)
	require.Len(t, job.Sources, 2)
	assert.Equal(t, "/mnt/mirror/custom-alpha", job.Sources[0].Target)
	assert.Equal(t, []string{"tmp/"}, job.Sources[1].AdditionalExcludes)
}

func TestLoadExplicitEmptyExcludesStaysEmpty(t *testing.T) {
	path := writeConfig(t, "jobs.yaml", `
jobs:
  - name: raw
    fallbackTarget: /backup
    additionalExcludes: []
    sources:
      - source: /data/raw
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Jobs[0].AdditionalExcludes)
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"no jobs", "jobs.yaml", "jobs: []\n"},
		{"missing name", "jobs.yaml", `
jobs:
  - fallbackTarget: /backup
    sources:
      - source: /data
`},
		{"missing fallback target", "jobs.yaml", `
jobs:
  - name: a
    sources:
      - source: /data
`},
		{"no sources", "jobs.yaml", `
jobs:
  - name: a
    fallbackTarget: /backup
    sources: []
`},
		{"bad compareBy", "jobs.yaml", `
jobs:
  - name: a
    fallbackTarget: /backup
    compareBy: checksum
    sources:
      - source: /data
`},
		{"duplicate job names", "jobs.yaml", `
jobs:
  - name: a
    fallbackTarget: /backup
    sources:
      - source: /data/one
  - name: a
    fallbackTarget: /backup
    sources:
      - source: /data/two
`},
		{"bad archive format", "jobs.yaml", `
jobs:
  - name: a
    fallbackTarget: /backup
    archiveExtraneousTo: /backup/archive
    archiveFormat: rar
    sources:
      - source: /data
`},
		{"unsupported extension", "jobs.toml", "jobs = []\n"},
		{"malformed yaml", "jobs.yaml", "jobs: ["},
		{"malformed json", "jobs.json", "{"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.file, tc.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfig(t, "jobs.yaml", `
jobs:
  - name: home
    fallbackTarget: ~/mirror
    sources:
      - source: ~/data
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mirror"), cfg.Jobs[0].FallbackTarget)
	assert.Equal(t, filepath.Join(home, "data"), cfg.Jobs[0].Sources[0].Source)
}

func TestResolveTarget(t *testing.T) {
	job := Job{FallbackTarget: "/backup"}

	t.Run("explicit target wins", func(t *testing.T) {
		got, err := ResolveTarget(job, Source{Source: "/data/notes", Target: "/elsewhere/notes"})
		require.NoError(t, err)
		assert.Equal(t, "/elsewhere/notes", got)
	})

	t.Run("fallback appends basename", func(t *testing.T) {
		got, err := ResolveTarget(job, Source{Source: "/data/notes"})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/backup", "notes"), got)
	})

	t.Run("trailing slash is tolerated", func(t *testing.T) {
		got, err := ResolveTarget(job, Source{Source: "/data/notes/"})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/backup", "notes"), got)
	})

	t.Run("root source has no basename", func(t *testing.T) {
		_, err := ResolveTarget(job, Source{Source: "/"})
		require.Error(t, err)
	})
}

func TestSelectJobs(t *testing.T) {
	cfg := &AppConfig{Jobs: []Job{{Name: "a"}, {Name: "b"}}}

	all, err := SelectJobs(cfg, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := SelectJobs(cfg, "b")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].Name)

	_, err = SelectJobs(cfg, "missing")
	require.Error(t, err)
}

func TestSelectSources(t *testing.T) {
	job := Job{
		Name: "repos",
		Sources: []Source{
			{Source: "/src/alpha"},
			{Source: "/src/beta"},
			{Source: "/other/beta"},
		},
	}

	t.Run("empty filter returns all", func(t *testing.T) {
		got, err := SelectSources(job, "")
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("exact path", func(t *testing.T) {
		got, err := SelectSources(job, "/src/alpha")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "/src/alpha", got[0].Source)
	})

	t.Run("unique basename", func(t *testing.T) {
		got, err := SelectSources(job, "alpha")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "/src/alpha", got[0].Source)
	})

	t.Run("ambiguous basename", func(t *testing.T) {
		_, err := SelectSources(job, "beta")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ambiguous")
	})

	t.Run("glob pattern", func(t *testing.T) {
		got, err := SelectSources(job, "/src/*")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := SelectSources(job, "gamma")
		require.Error(t, err)
	})
}
