package config

const (
	defaultConfigPath         = "~/.config/ampliconflow/config.toml"
	projectConfigName         = "ampliconflow.toml"
	defaultWorkDir            = "~/.local/share/ampliconflow/work"
	defaultOutputDir          = "~/.local/share/ampliconflow/results"
	defaultLogDir             = "~/.local/share/ampliconflow/logs"
	defaultLedgerPath         = "~/.local/share/ampliconflow/ledger.db"
	defaultBackend            = BackendUsearch
	defaultUsearchBinary      = "usearch"
	defaultVsearchBinary      = "vsearch"
	defaultMaxEE              = 1.0
	defaultMinLength          = 50
	defaultDenoiseMinSize     = 8
	defaultDenoiseAlpha       = 2.0
	defaultClusterMinSize     = 2
	defaultClusterIdentity    = 0.97
	defaultReclusterIdentity  = 0.99
	defaultOTUMappingIdentity = 0.97
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"

	// EnvEngineBackend overrides engine.backend when set.
	EnvEngineBackend = "AMPLICONFLOW_ENGINE"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	maxEE := defaultMaxEE
	minLength := defaultMinLength
	return Config{
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			LedgerPath: defaultLedgerPath,
		},
		Engine: Engine{
			Backend:       defaultBackend,
			UsearchBinary: defaultUsearchBinary,
			VsearchBinary: defaultVsearchBinary,
		},
		Filter: Filter{
			MaxEE:     &maxEE,
			MinLength: &minLength,
		},
		Denoise: Denoise{
			MinSize: defaultDenoiseMinSize,
			Alpha:   defaultDenoiseAlpha,
		},
		Cluster: Cluster{
			MinSize:           defaultClusterMinSize,
			Identity:          defaultClusterIdentity,
			ReclusterIdentity: defaultReclusterIdentity,
		},
		Mapping: Mapping{
			OTUIdentity: defaultOTUMappingIdentity,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
