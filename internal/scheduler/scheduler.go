// Package scheduler holds the fuzz campaign's shared mutable state: the
// score-bucketed seed index, the global coverage set, and the halt flag
// that tells every worker to stop. It is the one piece of state workers
// touch concurrently; everything else (a worker's own wks/ and saw/
// subtrees) is exclusively owned by that worker.
package scheduler

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/sawmutest/sawmutest/internal/corpus"
	"github.com/sawmutest/sawmutest/internal/transcript"
)

// DefaultSeedScore is the weight a freshly discovered seed starts from
// before the novelty/coverage-size/trace-length adjustment in §4.8 step 13
// is applied, and the per-mutation-point unit the base seed's initial
// score is scaled by.
const DefaultSeedScore = 1000

// GlobalState is the scheduler: a score-bucketed priority index over live
// seed IDs, the union of every verification error ever observed, and a
// halt flag workers poll between iterations.
//
// Locking is split three ways rather than behind one coarse mutex:
// coverageMu guards cov, seedsMu guards the seed buckets, and flagHalt is
// a lock-free atomic. None of the three is ever held across a subprocess
// call or held while acquiring another, so the split cannot introduce a
// new deadlock relative to a single mutex, and it lets a worker's
// UpdateCoverage proceed while another worker's NextSeed is picking.
type GlobalState struct {
	store *corpus.SeedStore

	coverageMu sync.Mutex
	cov        []transcript.VerificationError

	seedsMu sync.Mutex
	buckets map[int][]int // score -> seed IDs currently at that score

	flagHalt atomic.Bool
}

// New constructs an empty GlobalState backed by store. Callers populate it
// by calling AddSeed for every seed already on disk (including the base
// seed) before starting workers.
func New(store *corpus.SeedStore) *GlobalState {
	return &GlobalState{
		store:   store,
		buckets: make(map[int][]int),
	}
}

// AddSeed registers a seed already written to store under the scheduler's
// priority index, at the given score.
func (g *GlobalState) AddSeed(id int, score int) {
	g.seedsMu.Lock()
	defer g.seedsMu.Unlock()
	g.buckets[score] = append(g.buckets[score], id)
}

// NextSeed picks a uniformly random seed from the highest-scoring
// non-empty bucket, moves it down one score bucket (both in memory and in
// its on-disk score.txt), and returns its ID and the score it held before
// the decrement. It fails fatally, with no recovery path, if every bucket
// is empty.
func (g *GlobalState) NextSeed() (id int, priorScore int, err error) {
	g.seedsMu.Lock()
	defer g.seedsMu.Unlock()

	maxScore, ok := g.maxNonEmptyBucketLocked()
	if !ok {
		return 0, 0, fmt.Errorf("scheduler: next_seed called with no seeds available")
	}

	bucket := g.buckets[maxScore]
	idx := rand.Intn(len(bucket))
	id = bucket[idx]

	g.removeFromBucketLocked(maxScore, idx)
	newScore := maxScore - 1
	if newScore < 0 {
		newScore = 0
	}
	g.buckets[newScore] = append(g.buckets[newScore], id)

	if err := g.store.UpdateScore(id, newScore); err != nil {
		return 0, 0, err
	}
	return id, maxScore, nil
}

// UpdateSeedScore adjusts id's score by delta, clamped at zero, updating
// both the on-disk score.txt and the bucket index so the invariant "bucket
// key equals on-disk score" holds atomically with the write.
func (g *GlobalState) UpdateSeedScore(id int, delta int) error {
	g.seedsMu.Lock()
	defer g.seedsMu.Unlock()

	oldScore, ok := g.findScoreLocked(id)
	if !ok {
		return fmt.Errorf("scheduler: update_seed_score: seed %d is not indexed", id)
	}
	newScore := oldScore + delta
	if newScore < 0 {
		newScore = 0
	}
	if newScore == oldScore {
		return nil
	}

	g.removeSeedLocked(oldScore, id)
	g.buckets[newScore] = append(g.buckets[newScore], id)

	return g.store.UpdateScore(id, newScore)
}

// UpdateCoverage inserts every entry in newCov not already present in the
// global coverage set, preserving sorted order, and returns how many
// entries were actually new.
func (g *GlobalState) UpdateCoverage(newCov []transcript.VerificationError) int {
	g.coverageMu.Lock()
	defer g.coverageMu.Unlock()

	additions := 0
	for _, c := range newCov {
		found := false
		for _, existing := range g.cov {
			if existing.Equal(c) {
				found = true
				break
			}
		}
		if !found {
			g.cov = append(g.cov, c)
			additions++
		}
	}
	sort.Slice(g.cov, func(i, j int) bool {
		return g.cov[i].Less(g.cov[j])
	})
	return additions
}

// Coverage returns a snapshot copy of the global coverage set, consistent
// as of the lock acquisition.
func (g *GlobalState) Coverage() []transcript.VerificationError {
	g.coverageMu.Lock()
	defer g.coverageMu.Unlock()

	out := make([]transcript.VerificationError, len(g.cov))
	copy(out, g.cov)
	return out
}

// DumpCov serializes the current coverage snapshot to path (typically
// fuzz/status/cov.json).
func (g *GlobalState) DumpCov(path string) error {
	return corpus.WriteCoverageSnapshot(path, g.Coverage())
}

// NotInCoverage reports whether c is absent from the current global
// coverage set -- used by the worker loop to count how many of a base
// seed's errors were eliminated by a mutant.
func (g *GlobalState) NotInCoverage(c transcript.VerificationError) bool {
	g.coverageMu.Lock()
	defer g.coverageMu.Unlock()

	for _, existing := range g.cov {
		if existing.Equal(c) {
			return false
		}
	}
	return true
}

// FlagHalt reports whether the halt flag is set.
func (g *GlobalState) FlagHalt() bool {
	return g.flagHalt.Load()
}

// SetFlagHalt sets the halt flag, telling every worker to stop at its next
// iteration boundary.
func (g *GlobalState) SetFlagHalt() {
	g.flagHalt.Store(true)
}

func (g *GlobalState) maxNonEmptyBucketLocked() (int, bool) {
	found := false
	max := 0
	for score, ids := range g.buckets {
		if len(ids) == 0 {
			continue
		}
		if !found || score > max {
			max = score
			found = true
		}
	}
	return max, found
}

func (g *GlobalState) findScoreLocked(id int) (int, bool) {
	for score, ids := range g.buckets {
		for _, existing := range ids {
			if existing == id {
				return score, true
			}
		}
	}
	return 0, false
}

func (g *GlobalState) removeSeedLocked(score, id int) {
	bucket := g.buckets[score]
	for i, existing := range bucket {
		if existing == id {
			g.removeFromBucketLocked(score, i)
			return
		}
	}
}

// removeFromBucketLocked deletes the element at idx from buckets[score]
// and drops the bucket entirely once empty, preserving the invariant that
// every key present in buckets has a non-empty slice.
func (g *GlobalState) removeFromBucketLocked(score, idx int) {
	bucket := g.buckets[score]
	bucket = append(bucket[:idx], bucket[idx+1:]...)
	if len(bucket) == 0 {
		delete(g.buckets, score)
		return
	}
	g.buckets[score] = bucket
}
