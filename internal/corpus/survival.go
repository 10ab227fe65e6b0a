package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/sawmutest/sawmutest/internal/bitcode"
)

// SurvivalStore manages work/fuzz/survival/<N>/trace.json: an append-only
// record of traces whose mutated bitcode produced no verification errors
// at all, i.e. survived every proof.
type SurvivalStore struct {
	dir     string
	counter int64
}

// NewSurvivalStore creates dir if needed and returns a store whose ID
// allocator starts past whatever survival records already exist.
func NewSurvivalStore(dir string) (*SurvivalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("corpus: failed to create survival dir %s: %w", dir, err)
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
	return &SurvivalStore{dir: dir, counter: max + 1}, nil
}

// Dir returns the directory for a given survival record ID.
func (s *SurvivalStore) Dir(id int) string {
	return filepath.Join(s.dir, strconv.Itoa(id))
}

// Allocate claims a fresh survival record ID, same discipline as
// SeedStore.Allocate.
func (s *SurvivalStore) Allocate() (int, error) {
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
		return 0, fmt.Errorf("corpus: failed to allocate survival dir %s: %w", dir, err)
	}
}

// Write persists a survival record's trace into its (already-allocated)
// directory. Survival records are never rewritten once written.
func (s *SurvivalStore) Write(id int, trace bitcode.Trace) error {
	return trace.Save(filepath.Join(s.Dir(id), "trace.json"))
}

// Read loads one survival record's trace.
func (s *SurvivalStore) Read(id int) (bitcode.Trace, error) {
	return bitcode.LoadTrace(filepath.Join(s.Dir(id), "trace.json"))
}

// List returns the IDs of every survival directory that has a
// trace.json, skipping partially-written ones.
func (s *SurvivalStore) List() ([]int, error) {
	candidates, err := listNumberedDirs(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, id := range candidates {
		if fileExists(filepath.Join(s.Dir(id), "trace.json")) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
