// Package corpus manages the on-disk seed and survival-trace stores: the
// numbered directories under work/fuzz/seeds/ and work/fuzz/survival/,
// with atomic directory allocation so concurrent workers never collide on
// an ID.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/sawmutest/sawmutest/internal/bitcode"
	"github.com/sawmutest/sawmutest/internal/transcript"
)

// BaseSeedID is the fixed identifier of the seed every fuzz campaign
// starts from: an empty trace over the unmutated bitcode.
const BaseSeedID = 0

// Seed is one entry in the seed corpus: the trace of mutations that
// produced it, the coverage (verification error signatures) it is
// credited with discovering, and its current scheduling score.
type Seed struct {
	ID    int
	Trace bitcode.Trace
	Cov   []transcript.VerificationError
	Score int
}

// SeedStore manages work/fuzz/seeds/<N>/{trace.json,cov.json,score.txt}.
type SeedStore struct {
	dir     string
	counter int64
}

// NewSeedStore creates dir if needed and returns a store whose ID
// allocator starts past whatever seeds already exist on disk.
func NewSeedStore(dir string) (*SeedStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("corpus: failed to create seed dir %s: %w", dir, err)
	}
	ids, err := listNumberedDirs(dir)
	if err != nil {
		return nil, err
	}
	max := int64(-1)
	for _, id := range ids {
		if int64(id) > max {
			max = int64(id)
		}
	}
	return &SeedStore{dir: dir, counter: max + 1}, nil
}

// Dir returns the directory for a given seed ID.
func (s *SeedStore) Dir(id int) string {
	return filepath.Join(s.dir, strconv.Itoa(id))
}

// Allocate claims a fresh seed ID by mkdir'ing its directory, retrying
// past any collision (another worker raced it) until one succeeds.
func (s *SeedStore) Allocate() (int, error) {
	for {
		id := int(atomic.AddInt64(&s.counter, 1)) - 1
		dir := s.Dir(id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return id, nil
		}
		if os.IsExist(err) {
			continue
		}
		return 0, fmt.Errorf("corpus: failed to allocate seed dir %s: %w", dir, err)
	}
}

// Write persists a seed's trace, coverage, and score files into its
// (already-allocated) directory.
func (s *SeedStore) Write(seed Seed) error {
	dir := s.Dir(seed.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("corpus: failed to create %s: %w", dir, err)
	}

	if err := seed.Trace.Save(filepath.Join(dir, "trace.json")); err != nil {
		return err
	}
	if err := writeCov(filepath.Join(dir, "cov.json"), seed.Cov); err != nil {
		return err
	}
	if err := writeScore(filepath.Join(dir, "score.txt"), seed.Score); err != nil {
		return err
	}
	return nil
}

// UpdateScore rewrites just the score.txt file for an existing seed.
func (s *SeedStore) UpdateScore(id int, score int) error {
	return writeScore(filepath.Join(s.Dir(id), "score.txt"), score)
}

// EnsureBaseSeed creates the base seed (ID 0, empty trace, empty
// coverage) the first time a fresh fuzz run starts, doing nothing if it
// already exists.
func (s *SeedStore) EnsureBaseSeed(initialScore int) error {
	dir := s.Dir(BaseSeedID)
	if _, err := os.Stat(filepath.Join(dir, "trace.json")); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("corpus: failed to create base seed dir %s: %w", dir, err)
	}
	return s.Write(Seed{ID: BaseSeedID, Trace: bitcode.Trace{}, Cov: nil, Score: initialScore})
}

// Read loads one seed by ID.
func (s *SeedStore) Read(id int) (*Seed, error) {
	dir := s.Dir(id)

	trace, err := bitcode.LoadTrace(filepath.Join(dir, "trace.json"))
	if err != nil {
		return nil, err
	}
	cov, err := readCov(filepath.Join(dir, "cov.json"))
	if err != nil {
		return nil, err
	}
	score, err := readScore(filepath.Join(dir, "score.txt"))
	if err != nil {
		return nil, err
	}

	return &Seed{ID: id, Trace: trace, Cov: cov, Score: score}, nil
}

// List returns the IDs of every seed directory that has all three
// expected files, silently skipping partially-written directories (a
// worker that was killed mid-write, or one still being written by
// another goroutine right now).
func (s *SeedStore) List() ([]int, error) {
	candidates, err := listNumberedDirs(s.dir)
	if err != nil {
		return nil, err
	}

	var ids []int
	for _, id := range candidates {
		dir := s.Dir(id)
		if fileExists(filepath.Join(dir, "trace.json")) &&
			fileExists(filepath.Join(dir, "cov.json")) &&
			fileExists(filepath.Join(dir, "score.txt")) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func listNumberedDirs(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus: failed to list %s: %w", dir, err)
	}
	var ids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
