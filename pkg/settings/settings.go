// Package settings persists the agent's run parameters between invocations.
// The state lives in a small JSON document under the user's state directory
// and is written atomically so a crash never leaves a half-written file.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mirrorlabs.io/repomirror/pkg/util"
)

const (
	// StateDirName is the per-user state directory under $HOME.
	StateDirName = ".repomirror"
	// stateFileName is the agent settings document inside the state directory.
	stateFileName = "agent-state.json"

	// DefaultScheduleMinutes is used when the stored interval is absent.
	DefaultScheduleMinutes = 30
)

// AgentSettings is the persisted configuration of the background agent.
type AgentSettings struct {
	// ConfigPath points at the job configuration document the agent runs.
	ConfigPath string `json:"configPath"`
	// ScheduleEnabled turns the periodic trigger on.
	ScheduleEnabled bool `json:"scheduleEnabled"`
	// ScheduleMinutes is the interval between runs. Minimum 1.
	ScheduleMinutes int `json:"scheduleMinutes"`
	// JobFilter restricts runs to one job by name. Empty selects all jobs.
	JobFilter string `json:"jobFilter"`
	// SourceFilter restricts runs to matching sources. Empty selects all.
	SourceFilter string `json:"sourceFilter"`
	// DryRun makes every scheduled run report-only.
	DryRun bool `json:"dryRun"`
	// ContinueOnError keeps scheduled runs going past per-file failures.
	ContinueOnError bool `json:"continueOnError"`
}

// Normalized returns a copy with out-of-range values clamped to usable
// defaults.
func (s AgentSettings) Normalized() AgentSettings {
	if s.ScheduleMinutes < 1 {
		s.ScheduleMinutes = DefaultScheduleMinutes
	}
	return s
}

// StateDir returns the per-user state directory, creating it if needed.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	dir := filepath.Join(home, StateDirName)
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return "", fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return dir, nil
}

// statePath returns the settings file location, creating the state dir.
func statePath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, stateFileName), nil
}

// Load reads the persisted agent settings. A missing file yields defaults.
func Load() (AgentSettings, error) {
	path, err := statePath()
	if err != nil {
		return AgentSettings{}, err
	}
	return loadFrom(path)
}

func loadFrom(path string) (AgentSettings, error) {
	defaults := AgentSettings{ScheduleMinutes: DefaultScheduleMinutes}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return AgentSettings{}, fmt.Errorf("failed to read agent settings %s: %w", path, err)
	}

	var s AgentSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return AgentSettings{}, fmt.Errorf("failed to parse agent settings %s: %w", path, err)
	}
	return s.Normalized(), nil
}

// Save persists the agent settings atomically via a temporary file in the
// same directory.
func Save(s AgentSettings) error {
	path, err := statePath()
	if err != nil {
		return err
	}
	return saveTo(path, s)
}

func saveTo(path string, s AgentSettings) error {
	data, err := json.MarshalIndent(s.Normalized(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode agent settings: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "repomirror-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file in %s: %w", dir, err)
	}
	tempPath := tmp.Name()
	defer func() {
		if tempPath != "" {
			tmp.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write agent settings: %w", err)
	}
	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to set permissions on agent settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp settings file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to replace agent settings %s: %w", path, err)
	}
	tempPath = ""
	return nil
}
