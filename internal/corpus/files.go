package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sawmutest/sawmutest/internal/transcript"
)

// coverageWire is the on-disk shape of cov.json: an array of
// {item, details} pairs, matching transcript.VerificationError's own
// canonical field order.
type coverageWire struct {
	Item    string              `json:"item"`
	Details *transcript.Record `json:"details"`
}

// WriteCoverageSnapshot writes cov to path in the same cov.json shape a
// seed directory uses, for the scheduler's global status/cov.json dump.
func WriteCoverageSnapshot(path string, cov []transcript.VerificationError) error {
	return writeCov(path, cov)
}

// ReadCoverageSnapshot reads a cov.json previously written by
// WriteCoverageSnapshot.
func ReadCoverageSnapshot(path string) ([]transcript.VerificationError, error) {
	return readCov(path)
}

func writeCov(path string, cov []transcript.VerificationError) error {
	wire := make([]coverageWire, len(cov))
	for i, c := range cov {
		wire[i] = coverageWire{Item: c.Item, Details: c.Details}
	}
	data, err := json.MarshalIndent(wire, "", "    ")
	if err != nil {
		return fmt.Errorf("corpus: failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("corpus: failed to write %s: %w", path, err)
	}
	return nil
}

func readCov(path string) ([]transcript.VerificationError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: failed to read %s: %w", path, err)
	}
	var wire []coverageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("corpus: failed to parse %s: %w", path, err)
	}
	out := make([]transcript.VerificationError, len(wire))
	for i, w := range wire {
		out[i] = transcript.VerificationError{Item: w.Item, Details: w.Details}
	}
	return out, nil
}

func writeScore(path string, score int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(score)), 0644); err != nil {
		return fmt.Errorf("corpus: failed to write %s: %w", path, err)
	}
	return nil
}

func readScore(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("corpus: failed to read %s: %w", path, err)
	}
	score, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corpus: failed to parse score in %s: %w", path, err)
	}
	return score, nil
}
