// Package config loads, normalizes, and validates ampliconflow configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the AMPLICONFLOW_ENGINE environment
// override. The Config type centralizes every knob the pipeline and CLI need:
// engine selection, filter thresholds, and the denoise/cluster parameters.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
