// Package config loads fold's runtime configuration from a layered JSONC
// file plus environment variables, following the same
// defaults → global → project (or explicit --config path) → env → CLI
// precedence chain and hujson-based parsing the teacher's own config
// loader uses.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ErrStateDirEmpty is returned when a config file explicitly sets
// state_dir to the empty string, matching the teacher's
// explicit-empty-field detection for its own ticket_dir field.
var ErrStateDirEmpty = errors.New("config: state_dir must not be empty")

// ErrConfigFileNotFound is returned when an explicitly named config path
// (via --config) does not exist.
var ErrConfigFileNotFound = errors.New("config: file not found")

// ErrConfigInvalid wraps a JSONC parse or JSON decode failure with the
// offending path.
var ErrConfigInvalid = errors.New("config: invalid config file")

// ConfigFileName is the default project-local config file name.
const ConfigFileName = "fold.jsonc"

// Config holds every tunable of a fold run. A zero value in a config file
// means "unset": the value from the lower layer (ultimately DefaultConfig)
// is kept.
type Config struct {
	StateDir string `json:"state_dir"`

	// MemoryTargetFraction is the fraction of total RAM memconfig.Calculate
	// targets (spec.md §5's "configurable fraction, e.g. 75%"). Zero keeps
	// the built-in default of 0.75.
	MemoryTargetFraction float64 `json:"memory_target_fraction,omitempty"`

	// CheckpointEvery is a processed-ortho count between checkpoint
	// saves (spec.md §4.6 step 4f).
	CheckpointEvery int `json:"checkpoint_every,omitempty"`

	// LeaseGraceSeconds is how long a lease may go unrefreshed before
	// another worker may reclaim it (spec.md §6).
	LeaseGraceSeconds int `json:"lease_grace_seconds,omitempty"`

	// EffectiveCwd is resolved, not serialized.
	EffectiveCwd string `json:"-"`

	Sources Sources `json:"-"`
}

// Sources records which files contributed to the final Config, for
// diagnostics.
type Sources struct {
	Global  string
	Project string
}

// DefaultConfig returns fold's built-in defaults, used before any config
// file or environment variable is applied.
func DefaultConfig() Config {
	return Config{
		StateDir:             "./fold_state",
		MemoryTargetFraction: 0.75,
		CheckpointEvery:      1000,
		LeaseGraceSeconds:    300,
	}
}

// LoadInput holds every input LoadConfig needs, mirroring the teacher's
// LoadConfigInput shape.
type LoadInput struct {
	WorkDirOverride  string
	ConfigPath       string
	StateDirOverride string
	Env              map[string]string
}

// Load resolves a Config with precedence (highest wins): defaults, global
// user config, project config (or an explicit --config path), environment
// variables, CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolving working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if stateDir := input.Env["STATE_DIR"]; stateDir != "" {
		cfg.StateDir = stateDir
	}

	if input.StateDirOverride != "" {
		cfg.StateDir = input.StateDirOverride
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if !filepath.IsAbs(cfg.StateDir) {
		cfg.StateDir = filepath.Join(workDir, cfg.StateDir)
	}

	return cfg, nil
}

func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "fold", "config.jsonc")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "fold", "config.jsonc")
	}

	return ""
}

func loadGlobalConfig(env map[string]string) (Config, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["state_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrStateDirEmpty)
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var path string

	var mustExist bool

	if configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true

		if _, err := os.Stat(path); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		path = filepath.Join(workDir, ConfigFileName)
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["state_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrStateDirEmpty)
	}

	return cfg, path, nil
}

func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("config: reading %s: %w", path, err)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, err := parseConfig(data)
	if err != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["state_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["state_dir"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.StateDir != "" {
		base.StateDir = overlay.StateDir
	}

	if overlay.MemoryTargetFraction != 0 {
		base.MemoryTargetFraction = overlay.MemoryTargetFraction
	}

	if overlay.CheckpointEvery != 0 {
		base.CheckpointEvery = overlay.CheckpointEvery
	}

	if overlay.LeaseGraceSeconds != 0 {
		base.LeaseGraceSeconds = overlay.LeaseGraceSeconds
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.StateDir == "" {
		return ErrStateDirEmpty
	}

	if cfg.MemoryTargetFraction <= 0 || cfg.MemoryTargetFraction > 1 {
		return fmt.Errorf("config: memory_target_fraction must be in (0, 1], got %v", cfg.MemoryTargetFraction)
	}

	return nil
}
