package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sawmutest/sawmutest/internal/corpus"
	"github.com/sawmutest/sawmutest/internal/transcript"
)

func newTestStore(t *testing.T) *corpus.SeedStore {
	t.Helper()
	store, err := corpus.NewSeedStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNextSeedPicksMaxBucketAndDecrementsScore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBaseSeed(10))

	g := New(store)
	g.AddSeed(corpus.BaseSeedID, 10)

	id, prior, err := g.NextSeed()
	require.NoError(t, err)
	require.Equal(t, corpus.BaseSeedID, id)
	require.Equal(t, 10, prior)

	seed, err := store.Read(corpus.BaseSeedID)
	require.NoError(t, err)
	require.Equal(t, 9, seed.Score)
}

func TestNextSeedPrefersHigherBucket(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBaseSeed(5))
	otherID, err := store.Allocate()
	require.NoError(t, err)
	require.NoError(t, store.Write(corpus.Seed{ID: otherID, Score: 50}))

	g := New(store)
	g.AddSeed(corpus.BaseSeedID, 5)
	g.AddSeed(otherID, 50)

	id, prior, err := g.NextSeed()
	require.NoError(t, err)
	require.Equal(t, otherID, id)
	require.Equal(t, 50, prior)
}

func TestNextSeedFailsFastWhenEmpty(t *testing.T) {
	store := newTestStore(t)
	g := New(store)

	_, _, err := g.NextSeed()
	require.Error(t, err)
}

func TestUpdateSeedScoreClampsAtZero(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBaseSeed(1))

	g := New(store)
	g.AddSeed(corpus.BaseSeedID, 1)

	require.NoError(t, g.UpdateSeedScore(corpus.BaseSeedID, -5))

	seed, err := store.Read(corpus.BaseSeedID)
	require.NoError(t, err)
	require.Equal(t, 0, seed.Score)

	id, prior, err := g.NextSeed()
	require.NoError(t, err)
	require.Equal(t, corpus.BaseSeedID, id)
	require.Equal(t, 0, prior)
}

func TestUpdateSeedScoreRemovesEmptyBucket(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBaseSeed(5))
	otherID, err := store.Allocate()
	require.NoError(t, err)
	require.NoError(t, store.Write(corpus.Seed{ID: otherID, Score: 5}))

	g := New(store)
	g.AddSeed(corpus.BaseSeedID, 5)
	g.AddSeed(otherID, 5)

	require.NoError(t, g.UpdateSeedScore(corpus.BaseSeedID, 10))
	require.Equal(t, []int{otherID}, g.buckets[5], "bucket 5 should retain otherID only")
	require.Contains(t, g.buckets[5], otherID)
	require.Contains(t, g.buckets[15], corpus.BaseSeedID)

	require.NoError(t, g.UpdateSeedScore(otherID, 10))
	_, stillIndexed := g.buckets[5]
	require.False(t, stillIndexed, "bucket 5 should be removed once empty")
}

func newVerificationError(item, goal string) transcript.VerificationError {
	return transcript.VerificationError{
		Item:    item,
		Details: transcript.NewRecord().Set("type", "subgoal failed").Set("goal", goal),
	}
}

func TestUpdateCoverageDedupesAndCountsAdditions(t *testing.T) {
	store := newTestStore(t)
	g := New(store)

	a := newVerificationError("x.saw", "safety")
	b := newVerificationError("y.saw", "safety")

	added := g.UpdateCoverage([]transcript.VerificationError{a, b})
	require.Equal(t, 2, added)

	addedAgain := g.UpdateCoverage([]transcript.VerificationError{a})
	require.Equal(t, 0, addedAgain)

	require.Len(t, g.Coverage(), 2)
}

func TestNotInCoverage(t *testing.T) {
	store := newTestStore(t)
	g := New(store)

	a := newVerificationError("x.saw", "safety")
	require.True(t, g.NotInCoverage(a))

	g.UpdateCoverage([]transcript.VerificationError{a})
	require.False(t, g.NotInCoverage(a))
}

func TestFlagHalt(t *testing.T) {
	store := newTestStore(t)
	g := New(store)

	require.False(t, g.FlagHalt())
	g.SetFlagHalt()
	require.True(t, g.FlagHalt())
}

func TestNextSeedConcurrentCallsStayConsistent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBaseSeed(100))

	g := New(store)
	g.AddSeed(corpus.BaseSeedID, 100)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := g.NextSeed()
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	seed, err := store.Read(corpus.BaseSeedID)
	require.NoError(t, err)
	require.Equal(t, 80, seed.Score)
}

func TestBaseSeedInitialScoreScalesWithCatalogueSize(t *testing.T) {
	require.Equal(t, DefaultSeedScore*3, BaseSeedInitialScore(3))
}
