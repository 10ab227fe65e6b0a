package bitcode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadTrace reads a trace.json file into a Trace.
func LoadTrace(path string) (Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bitcode: failed to read trace %s: %w", path, err)
	}
	var trace Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("bitcode: failed to parse trace %s: %w", path, err)
	}
	return trace, nil
}

// Save writes the trace to path as indented JSON.
func (t Trace) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("bitcode: failed to create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return fmt.Errorf("bitcode: failed to marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("bitcode: failed to write trace %s: %w", path, err)
	}
	return nil
}

// Append returns a new Trace with step appended, without mutating t.
func (t Trace) Append(step MutationStep) Trace {
	out := make(Trace, len(t), len(t)+1)
	copy(out, t)
	return append(out, step)
}
