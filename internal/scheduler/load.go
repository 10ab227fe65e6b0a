package scheduler

import (
	"fmt"

	"github.com/sawmutest/sawmutest/internal/corpus"
)

// LoadFromStore builds a GlobalState from every seed currently on disk in
// store, rebuilding the coverage set as the union of every seed's
// cov.json.
func LoadFromStore(store *corpus.SeedStore) (*GlobalState, error) {
	ids, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to list seeds: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("scheduler: seed store has no seeds; call EnsureBaseSeed first")
	}

	g := New(store)
	for _, id := range ids {
		seed, err := store.Read(id)
		if err != nil {
			return nil, fmt.Errorf("scheduler: failed to read seed %d: %w", id, err)
		}
		g.AddSeed(id, seed.Score)
		g.UpdateCoverage(seed.Cov)
	}
	return g, nil
}

// BaseSeedInitialScore scales DefaultSeedScore by the mutation-point
// catalogue's size: a larger catalogue means next_seed takes longer to
// exhaust the base seed's unexplored points, so it should start further
// ahead of any descendant seed.
func BaseSeedInitialScore(catalogueSize int) int {
	return DefaultSeedScore * catalogueSize
}
