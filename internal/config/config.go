// Package config binds cobra flags (with viper's environment-variable
// fallback) to a validated Config value, one Load function per
// cmd/orchestrator subcommand. Validation runs eagerly inside Load, before
// any repo or orchestrator is constructed (SPEC_FULL.md §A.3), so a bad path
// or an unknown reconciliation mode is caught as a configuration error rather
// than surfacing mid-run.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowstate/orchestrator/core/checkpoint"
)

// EnvPrefix is the environment variable prefix viper falls back to for every
// flag (e.g. --max-cycles also reads ORCHESTRATOR_MAX_CYCLES).
const EnvPrefix = "ORCHESTRATOR"

// ConfigError is returned by every Load function for a bad flag value. The
// CLI entry point maps it to exit code 2 (§7.1 "Configuration errors ...
// fatal at construction").
type ConfigError struct {
	Flag    string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: --%s: %s", e.Flag, e.Message)
}

func newConfigError(flag, format string, args ...any) *ConfigError {
	return &ConfigError{Flag: flag, Message: fmt.Sprintf(format, args...)}
}

// RepoConfig holds the repository-file flags shared by run/resume/fork.
type RepoConfig struct {
	ConceptsPath   string
	InferencesPath string
	InputsPath     string
	SchemasPath    string
	BaseDir        string
}

// RunConfig is the validated configuration for `orchestrator run`.
type RunConfig struct {
	RepoConfig
	LLM       string
	MaxCycles int
	DBPath    string
}

// ResumeConfig is the validated configuration for `orchestrator resume`.
type ResumeConfig struct {
	RepoConfig
	RunID     string
	Mode      checkpoint.Mode
	MaxCycles int
	DBPath    string
}

// ForkConfig is the validated configuration for `orchestrator fork`.
type ForkConfig struct {
	RepoConfig
	FromRunID string
	NewRunID  string
	Mode      checkpoint.Mode
	MaxCycles int
	DBPath    string
}

// ServeConfig is the validated configuration for `orchestrator serve`.
type ServeConfig struct {
	RepoConfig
	LLM       string
	MaxCycles int
	DBPath    string
	Addr      string
}

// ListRunsConfig is the validated configuration for `orchestrator list-runs`.
type ListRunsConfig struct {
	DBPath string
}

// ListCheckpointsConfig is the validated configuration for
// `orchestrator list-checkpoints`.
type ListCheckpointsConfig struct {
	DBPath string
	RunID  string
}

// ExportConfig is the validated configuration for `orchestrator export`.
type ExportConfig struct {
	DBPath         string
	RunID          string
	Cycle          int
	InferenceCount int
	Output         string
}

// newViper binds a fresh viper instance to cmd's flag set with an
// environment-variable fallback, so e.g. --db-path can also be set via
// ORCHESTRATOR_DB_PATH.
func newViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		// BindPFlags only fails on a nil flag set, which cobra never
		// constructs a command without; treat as unreachable.
		panic(fmt.Sprintf("config: bind flags: %v", err))
	}
	return v
}

func resolveRepoConfig(v *viper.Viper) RepoConfig {
	return RepoConfig{
		ConceptsPath:   v.GetString("concepts"),
		InferencesPath: v.GetString("inferences"),
		InputsPath:     v.GetString("inputs"),
		SchemasPath:    v.GetString("schemas"),
		BaseDir:        v.GetString("base-dir"),
	}
}

func validateRepoPaths(repo RepoConfig) error {
	if repo.ConceptsPath == "" {
		return newConfigError("concepts", "required")
	}
	if repo.InferencesPath == "" {
		return newConfigError("inferences", "required")
	}
	if _, err := os.Stat(repo.ConceptsPath); err != nil {
		return newConfigError("concepts", "%v", err)
	}
	if _, err := os.Stat(repo.InferencesPath); err != nil {
		return newConfigError("inferences", "%v", err)
	}
	if repo.InputsPath != "" {
		if _, err := os.Stat(repo.InputsPath); err != nil {
			return newConfigError("inputs", "%v", err)
		}
	}
	if repo.SchemasPath != "" {
		if _, err := os.Stat(repo.SchemasPath); err != nil {
			return newConfigError("schemas", "%v", err)
		}
	}
	return nil
}

func validateMaxCycles(n int) error {
	if n < 0 {
		return newConfigError("max-cycles", "must not be negative, got %d", n)
	}
	return nil
}

// validateMode returns fallback when raw is empty, otherwise parses raw.
func validateMode(raw string, fallback checkpoint.Mode) (checkpoint.Mode, error) {
	if raw == "" {
		return fallback, nil
	}
	switch checkpoint.Mode(raw) {
	case checkpoint.ModePatch, checkpoint.ModeOverwrite, checkpoint.ModeFillGaps:
		return checkpoint.Mode(raw), nil
	default:
		return "", newConfigError("mode", "unknown reconciliation mode %q (want PATCH, OVERWRITE, or FILL_GAPS)", raw)
	}
}

// LoadRun validates the flags registered by cmd/orchestrator's run command.
func LoadRun(cmd *cobra.Command) (RunConfig, error) {
	v := newViper(cmd)
	repo := resolveRepoConfig(v)
	if err := validateRepoPaths(repo); err != nil {
		return RunConfig{}, err
	}
	maxCycles := v.GetInt("max-cycles")
	if err := validateMaxCycles(maxCycles); err != nil {
		return RunConfig{}, err
	}
	return RunConfig{
		RepoConfig: repo,
		LLM:        v.GetString("llm"),
		MaxCycles:  maxCycles,
		DBPath:     v.GetString("db-path"),
	}, nil
}

// LoadServe validates the flags registered by cmd/orchestrator's serve
// command.
func LoadServe(cmd *cobra.Command) (ServeConfig, error) {
	v := newViper(cmd)
	repo := resolveRepoConfig(v)
	if err := validateRepoPaths(repo); err != nil {
		return ServeConfig{}, err
	}
	maxCycles := v.GetInt("max-cycles")
	if err := validateMaxCycles(maxCycles); err != nil {
		return ServeConfig{}, err
	}
	addr := v.GetString("addr")
	if addr == "" {
		addr = ":8080"
	}
	return ServeConfig{
		RepoConfig: repo,
		LLM:        v.GetString("llm"),
		MaxCycles:  maxCycles,
		DBPath:     v.GetString("db-path"),
		Addr:       addr,
	}, nil
}

// LoadResume validates the flags registered by cmd/orchestrator's resume
// command.
func LoadResume(cmd *cobra.Command) (ResumeConfig, error) {
	v := newViper(cmd)
	repo := resolveRepoConfig(v)
	if err := validateRepoPaths(repo); err != nil {
		return ResumeConfig{}, err
	}
	runID := v.GetString("run-id")
	if runID == "" {
		return ResumeConfig{}, newConfigError("run-id", "required")
	}
	mode, err := validateMode(v.GetString("mode"), checkpoint.ModePatch)
	if err != nil {
		return ResumeConfig{}, err
	}
	maxCycles := v.GetInt("max-cycles")
	if err := validateMaxCycles(maxCycles); err != nil {
		return ResumeConfig{}, err
	}
	return ResumeConfig{
		RepoConfig: repo,
		RunID:      runID,
		Mode:       mode,
		MaxCycles:  maxCycles,
		DBPath:     v.GetString("db-path"),
	}, nil
}

// LoadFork validates the flags registered by cmd/orchestrator's fork
// command.
func LoadFork(cmd *cobra.Command) (ForkConfig, error) {
	v := newViper(cmd)
	repo := resolveRepoConfig(v)
	if err := validateRepoPaths(repo); err != nil {
		return ForkConfig{}, err
	}
	fromRun := v.GetString("from-run")
	if fromRun == "" {
		return ForkConfig{}, newConfigError("from-run", "required")
	}
	newRunID := v.GetString("new-run-id")
	mode, err := validateMode(v.GetString("mode"), checkpoint.ModeOverwrite)
	if err != nil {
		return ForkConfig{}, err
	}
	maxCycles := v.GetInt("max-cycles")
	if err := validateMaxCycles(maxCycles); err != nil {
		return ForkConfig{}, err
	}
	return ForkConfig{
		RepoConfig: repo,
		FromRunID:  fromRun,
		NewRunID:   newRunID,
		Mode:       mode,
		MaxCycles:  maxCycles,
		DBPath:     v.GetString("db-path"),
	}, nil
}

// LoadListRuns validates the flags registered by cmd/orchestrator's
// list-runs command.
func LoadListRuns(cmd *cobra.Command) (ListRunsConfig, error) {
	v := newViper(cmd)
	return ListRunsConfig{DBPath: v.GetString("db-path")}, nil
}

// LoadListCheckpoints validates the flags registered by cmd/orchestrator's
// list-checkpoints command.
func LoadListCheckpoints(cmd *cobra.Command) (ListCheckpointsConfig, error) {
	v := newViper(cmd)
	runID := v.GetString("run-id")
	if runID == "" {
		return ListCheckpointsConfig{}, newConfigError("run-id", "required")
	}
	return ListCheckpointsConfig{DBPath: v.GetString("db-path"), RunID: runID}, nil
}

// LoadExport validates the flags registered by cmd/orchestrator's export
// command.
func LoadExport(cmd *cobra.Command) (ExportConfig, error) {
	v := newViper(cmd)
	runID := v.GetString("run-id")
	if runID == "" {
		return ExportConfig{}, newConfigError("run-id", "required")
	}
	return ExportConfig{
		DBPath:         v.GetString("db-path"),
		RunID:          runID,
		Cycle:          v.GetInt("cycle"),
		InferenceCount: v.GetInt("inference-count"),
		Output:         v.GetString("output"),
	}, nil
}
