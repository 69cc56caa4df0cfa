package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeFilter()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	if value, ok := os.LookupEnv(EnvEngineBackend); ok && strings.TrimSpace(value) != "" {
		c.Engine.Backend = value
	}
	c.Engine.Backend = strings.ToLower(strings.TrimSpace(c.Engine.Backend))
	if c.Engine.Backend == "" {
		c.Engine.Backend = defaultBackend
	}
	c.Engine.ChimeraSearchBackend = strings.ToLower(strings.TrimSpace(c.Engine.ChimeraSearchBackend))
	c.Engine.UsearchBinary = strings.TrimSpace(c.Engine.UsearchBinary)
	if c.Engine.UsearchBinary == "" {
		c.Engine.UsearchBinary = defaultUsearchBinary
	}
	c.Engine.VsearchBinary = strings.TrimSpace(c.Engine.VsearchBinary)
	if c.Engine.VsearchBinary == "" {
		c.Engine.VsearchBinary = defaultVsearchBinary
	}
}

// Negative thresholds in the file mean "leave it to the engine".
func (c *Config) normalizeFilter() {
	if c.Filter.MaxEE != nil && *c.Filter.MaxEE < 0 {
		c.Filter.MaxEE = nil
	}
	if c.Filter.MinLength != nil && *c.Filter.MinLength < 0 {
		c.Filter.MinLength = nil
	}
	if c.Filter.MaxNs != nil && *c.Filter.MaxNs < 0 {
		c.Filter.MaxNs = nil
	}
	if c.Filter.TruncQual != nil && *c.Filter.TruncQual < 0 {
		c.Filter.TruncQual = nil
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.StageOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			stage = strings.ToLower(strings.TrimSpace(stage))
			level = strings.ToLower(strings.TrimSpace(level))
			if stage == "" || level == "" {
				continue
			}
			normalized[stage] = level
		}
		c.Logging.StageOverrides = normalized
	}
}
