package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
base_dir: /opt/s2n-tls
deps:
  saw_bin: /opt/saw/bin
  llvm_bin: /opt/llvm/bin
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/opt/s2n-tls", cfg.BaseDir)
	require.Equal(t, "work", cfg.WorkDir)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 60*time.Second, cfg.Supervisor.TickInterval)
	require.Equal(t, time.Second, cfg.Supervisor.StaggerInterval)
	require.Equal(t, []string{"verify_imperative_cryptol_spec.saw"}, cfg.Mutation.Denylist)
}

func TestLoadHonorsExplicitValuesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
base_dir: /opt/s2n-tls
work_dir: /tmp/work
log_level: debug
supervisor:
  tick_interval: 5s
  stagger_interval: 200ms
mutation:
  lib_path: /opt/libmutest.so
  denylist:
    - foo.saw
    - bar.saw
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/tmp/work", cfg.WorkDir)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5*time.Second, cfg.Supervisor.TickInterval)
	require.Equal(t, 200*time.Millisecond, cfg.Supervisor.StaggerInterval)
	require.Equal(t, []string{"foo.saw", "bar.saw"}, cfg.Mutation.Denylist)
}

func TestLoadResolvesEnvVarPlaceholders(t *testing.T) {
	t.Setenv("SAW_BIN_DIR", "/custom/saw/bin")

	dir := t.TempDir()
	path := writeConfig(t, dir, `
base_dir: /opt/s2n-tls
deps:
  saw_bin: ${SAW_BIN_DIR}
  llvm_bin: $UNSET_LLVM_BIN
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/custom/saw/bin", cfg.Deps.SawBin)
	require.Equal(t, "$UNSET_LLVM_BIN", cfg.Deps.LLVMBin)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// TestDenylistYAMLFixtureDecodesAsStringSlice decodes the same
// mutation.denylist fixture shape Load's viper path parses, directly
// through yaml.v3, confirming the fixture itself is well-formed before
// ever touching viper.
func TestDenylistYAMLFixtureDecodesAsStringSlice(t *testing.T) {
	var doc struct {
		Mutation struct {
			Denylist []string `yaml:"denylist"`
		} `yaml:"mutation"`
	}
	raw := []byte(`
mutation:
  denylist:
    - verify_imperative_cryptol_spec.saw
    - slow_proof.saw
`)
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	require.Equal(t, []string{"verify_imperative_cryptol_spec.saw", "slow_proof.saw"}, doc.Mutation.Denylist)
}
