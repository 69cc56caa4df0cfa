package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validatePooling(); err != nil {
		return err
	}
	if err := c.validateFilter(); err != nil {
		return err
	}
	if err := c.validateFeatureDiscovery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if !validBackend(c.Engine.Backend) {
		return fmt.Errorf("engine.backend must be %q or %q, got %q", BackendUsearch, BackendVsearch, c.Engine.Backend)
	}
	if c.Engine.ChimeraSearchBackend != "" && !validBackend(c.Engine.ChimeraSearchBackend) {
		return fmt.Errorf("engine.chimera_search_backend must be empty, %q or %q, got %q", BackendUsearch, BackendVsearch, c.Engine.ChimeraSearchBackend)
	}
	if c.Engine.Threads < 0 {
		return errors.New("engine.threads must be 0 (auto) or positive")
	}
	return nil
}

func (c *Config) validatePooling() error {
	if c.Pooling.Workers < 0 {
		return errors.New("pooling.workers must be 0 (auto) or positive")
	}
	return nil
}

func (c *Config) validateFilter() error {
	if c.Filter.MaxEE != nil && *c.Filter.MaxEE == 0 {
		return errors.New("filter.max_ee must be positive")
	}
	if c.Filter.TrimLeft < 0 {
		return errors.New("filter.trim_left must be >= 0")
	}
	if c.Filter.TruncLen < 0 {
		return errors.New("filter.trunc_len must be >= 0")
	}
	return nil
}

func (c *Config) validateFeatureDiscovery() error {
	if c.Dereplicate.MinUniqueSize < 0 {
		return errors.New("dereplicate.min_unique_size must be >= 0")
	}
	if c.Denoise.MinSize < 1 {
		return errors.New("denoise.min_size must be >= 1")
	}
	if c.Denoise.Alpha <= 0 {
		return errors.New("denoise.alpha must be positive")
	}
	if c.Cluster.MinSize < 1 {
		return errors.New("cluster.min_size must be >= 1")
	}
	for name, value := range map[string]float64{
		"cluster.identity":           c.Cluster.Identity,
		"cluster.recluster_identity": c.Cluster.ReclusterIdentity,
		"mapping.otu_identity":       c.Mapping.OTUIdentity,
	} {
		if value <= 0 || value > 1 {
			return fmt.Errorf("%s must be within (0, 1], got %v", name, value)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	for stage, level := range c.Logging.StageOverrides {
		switch level {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	return nil
}

func validBackend(name string) bool {
	return name == BackendUsearch || name == BackendVsearch
}
