package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Backend names accepted by engine.backend and engine.chimera_search_backend.
const (
	BackendUsearch = "usearch"
	BackendVsearch = "vsearch"
)

// Paths contains directory configuration.
type Paths struct {
	WorkDir       string `toml:"work_dir"`
	OutputDir     string `toml:"output_dir"`
	LogDir        string `toml:"log_dir"`
	LedgerPath    string `toml:"ledger_path"`
	KeepWorkspace bool   `toml:"keep_workspace"`
}

// Engine selects the external sequence-processing engine.
type Engine struct {
	Backend       string `toml:"backend"`
	UsearchBinary string `toml:"usearch_binary"`
	VsearchBinary string `toml:"vsearch_binary"`
	// Threads forwarded to the engine; 0 resolves to the node's CPU count minus three.
	Threads int `toml:"threads"`
	// ChimeraSearchBackend runs the unmapped-vs-chimera search; empty follows Backend.
	ChimeraSearchBackend string `toml:"chimera_search_backend"`
}

// Pooling controls how per-sample reads are relabelled and concatenated.
type Pooling struct {
	Workers         int  `toml:"workers"`
	KeepAnnotations bool `toml:"keep_annotations"`
}

// Filter holds quality thresholds. Nil pointers defer to the engine default.
type Filter struct {
	MaxEE     *float64 `toml:"max_ee"`
	MinLength *int     `toml:"min_length"`
	TrimLeft  int      `toml:"trim_left"`
	TruncLen  int      `toml:"trunc_len"`
	MaxNs     *int     `toml:"max_ns"`
	TruncQual *int     `toml:"trunc_qual"`
}

// Dereplicate contains full-length dereplication options.
type Dereplicate struct {
	MinUniqueSize int  `toml:"min_unique_size"`
	BothStrands   bool `toml:"both_strands"`
}

// Denoise contains UNOISE parameters.
type Denoise struct {
	MinSize int     `toml:"min_size"`
	Alpha   float64 `toml:"alpha"`
}

// Cluster contains UPARSE and re-clustering parameters.
type Cluster struct {
	MinSize           int     `toml:"min_size"`
	Identity          float64 `toml:"identity"`
	ReclusterIdentity float64 `toml:"recluster_identity"`
}

// Mapping contains read-to-feature search parameters.
type Mapping struct {
	OTUIdentity float64 `toml:"otu_identity"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for ampliconflow.
//
// Configuration sections by subsystem:
//   - Paths: workspace, output, log, and ledger locations
//   - Engine: usearch/vsearch selection, binaries, and thread count
//   - Pooling: per-sample relabel workers and annotation handling
//   - Filter: expected-error and length thresholds
//   - Dereplicate, Denoise, Cluster: feature discovery parameters
//   - Mapping: read-to-feature search identity for OTU tables
//   - Logging: log format, level, and per-stage overrides
type Config struct {
	Paths       Paths       `toml:"paths"`
	Engine      Engine      `toml:"engine"`
	Pooling     Pooling     `toml:"pooling"`
	Filter      Filter      `toml:"filter"`
	Dereplicate Dereplicate `toml:"dereplicate"`
	Denoise     Denoise     `toml:"denoise"`
	Cluster     Cluster     `toml:"cluster"`
	Mapping     Mapping     `toml:"mapping"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir}
	if c.Paths.LedgerPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.LedgerPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EngineBinary returns the executable configured for the given backend.
func (c *Config) EngineBinary(backend string) string {
	switch backend {
	case BackendVsearch:
		return c.Engine.VsearchBinary
	default:
		return c.Engine.UsearchBinary
	}
}

// ChimeraBackend resolves the backend used for the chimera accounting search.
func (c *Config) ChimeraBackend() string {
	if backend := strings.TrimSpace(c.Engine.ChimeraSearchBackend); backend != "" {
		return backend
	}
	return c.Engine.Backend
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
