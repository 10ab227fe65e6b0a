package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envVarPattern matches ${VAR} and bare $VAR placeholders in string
// config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// resolveEnvVars substitutes environment variable placeholders in s,
// leaving any placeholder whose variable is unset untouched.
func resolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match
		switch {
		case strings.HasPrefix(match, "${") && strings.HasSuffix(match, "}"):
			name = match[2 : len(match)-1]
		case strings.HasPrefix(match, "$"):
			name = match[1:]
		}
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// resolveInMap walks a decoded YAML map in place, resolving env var
// placeholders in every string value it finds.
func resolveInMap(m map[string]interface{}) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			m[k] = resolveEnvVars(val)
		case map[string]interface{}:
			resolveInMap(val)
		case []interface{}:
			resolveInSlice(val)
		}
	}
}

func resolveInSlice(s []interface{}) {
	for i, v := range s {
		switch val := v.(type) {
		case string:
			s[i] = resolveEnvVars(val)
		case map[string]interface{}:
			resolveInMap(val)
		}
	}
}

// Load reads the YAML config at path (or, if empty, searches "configs"
// and "." for config.yaml), resolves ${VAR}/$VAR placeholders in every
// string value against the process environment, and fills in the
// defaults named below for anything left unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	settings := v.AllSettings()
	resolveInMap(settings)

	resolved := viper.New()
	for key, value := range settings {
		resolved.Set(key, value)
	}

	var cfg Config
	if err := resolved.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}
