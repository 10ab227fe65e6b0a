// Package config loads the fuzz campaign's YAML configuration, the
// paths, worker count, and tool locations every subcommand needs.
package config

import (
	"time"
)

// Config is the top-level shape of configs/config.yaml.
type Config struct {
	// BaseDir is the s2n-tls checkout root (PATH_BASE): source of the
	// .saw scripts, spec/ and HMAC/ trees, and the base bitcode build.
	BaseDir string `mapstructure:"base_dir"`
	// Deps locates the external SAW/LLVM toolchains.
	Deps DepsConfig `mapstructure:"deps"`
	// WorkDir is where bitcode, fuzz state, and logs are written.
	WorkDir string `mapstructure:"work_dir"`
	// Workers is how many fuzzing threads to run. Zero means the
	// caller should default it (runtime.NumCPU() / 2).
	Workers int `mapstructure:"workers"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// LogDir is decoded from log_dir but nothing reads it; file logging is
	// switched on by -l/--log and writes under <work_dir>/fuzz.
	LogDir     string           `mapstructure:"log_dir"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Mutation   MutationConfig   `mapstructure:"mutation"`
}

// DepsConfig holds the external tool locations prepended to PATH for
// every opt/saw subprocess invocation.
type DepsConfig struct {
	SawBin  string `mapstructure:"saw_bin"`
	LLVMBin string `mapstructure:"llvm_bin"`
}

// SupervisorConfig tunes the worker pool's maintenance loop.
type SupervisorConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	StaggerInterval time.Duration `mapstructure:"stagger_interval"`
}

// MutationConfig tunes the mutation pass.
type MutationConfig struct {
	// LibPath is the shared object passed to `opt -load`.
	LibPath string `mapstructure:"lib_path"`
	// Denylist excludes named top-level .saw scripts from both worker
	// workspaces and verification runs.
	Denylist []string `mapstructure:"denylist"`
}

// defaultDenylist matches prover.py's historical exclusion of the
// Cryptol-imperative spec proof, whose runtime dwarfs every other
// script's.
var defaultDenylist = []string{"verify_imperative_cryptol_spec.saw"}

// applyDefaults fills in zero-valued fields with campaign-wide defaults,
// leaving anything the YAML file set untouched.
func applyDefaults(cfg *Config) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "work"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Supervisor.TickInterval == 0 {
		cfg.Supervisor.TickInterval = 60 * time.Second
	}
	if cfg.Supervisor.StaggerInterval == 0 {
		cfg.Supervisor.StaggerInterval = time.Second
	}
	if len(cfg.Mutation.Denylist) == 0 {
		cfg.Mutation.Denylist = defaultDenylist
	}
}
