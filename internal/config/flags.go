package config

import "github.com/spf13/pflag"

var (
	flagConfig  string
	flagDebug   bool
	flagLogFile string
	flagWorkers int
	flagRig     string
	flagBasis   string
	flagOutput  string
)

// RegisterFlags adds the global flags to fs. rigtool registers them as cobra
// persistent flags so every subcommand accepts them.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagConfig, "config", "", "Path to config file")
	fs.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	fs.StringVar(&flagLogFile, "log-file", "", "Also write logs to this file (rotated)")
	fs.IntVar(&flagWorkers, "workers", 0, "Evaluation workers (0 = config or GOMAXPROCS)")
	fs.StringVarP(&flagRig, "rig", "r", "", "Rig definition YAML")
	fs.StringVarP(&flagBasis, "basis", "b", "", "Basis mesh (OBJ/STL/PLY)")
	fs.StringVarP(&flagOutput, "output", "o", "", "Output directory")
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if flagDebug {
		cfg.Logging.Level = "debug"
	}
	if flagLogFile != "" {
		cfg.Logging.LogFile = flagLogFile
	}
	if flagWorkers > 0 {
		cfg.Evaluate.Workers = flagWorkers
	}
	if flagRig != "" {
		cfg.Paths.Rig = flagRig
	}
	if flagBasis != "" {
		cfg.Paths.Basis = flagBasis
	}
	if flagOutput != "" {
		cfg.Paths.Output = flagOutput
	}
}
