package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSummary is a realistic persisted summary with an ordered distribution.
func testSummary() core.DatasetSummary {
	flow := 82.85
	return core.DatasetSummary{
		TotalCount: 3,
		Averages:   core.Averages{Flowrate: &flow},
		TypeDistribution: core.TypeDistribution{
			{Label: "Reactor", Count: 2},
			{Label: "Pump", Count: 1},
		},
		Columns: core.Columns(),
	}
}

func newDataset(owner string, n int) core.NewDataset {
	return core.NewDataset{
		OwnerID:          owner,
		OriginalFilename: fmt.Sprintf("upload-%d.csv", n),
		BlobKey:          fmt.Sprintf("datasets/%s-%d.csv", owner, n),
		RowCount:         3,
		Summary:          testSummary(),
	}
}

// runStoreContract exercises behavior every DatasetStore must provide.
// advance moves the store's notion of "now" forward between uploads.
func runStoreContract(t *testing.T, newStore func(t *testing.T) core.DatasetStore, advance func()) {
	t.Run("admit within cap evicts nothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, evicted, err := s.Admit(ctx, newDataset("alice", 1), 5)
		require.NoError(t, err)
		assert.Empty(t, evicted)
		assert.NotZero(t, created.ID)
		assert.False(t, created.UploadedAt.IsZero())
		assert.Equal(t, "upload-1.csv", created.OriginalFilename)

		got, err := s.Get(ctx, "alice", created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, testSummary().TypeDistribution, got.Summary.TypeDistribution)
		require.NotNil(t, got.Summary.Averages.Flowrate)
		assert.InDelta(t, 82.85, *got.Summary.Averages.Flowrate, 1e-9)
		assert.Nil(t, got.Summary.Averages.Pressure)
	})

	t.Run("sixth upload evicts the oldest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []int64
		for i := 1; i <= 6; i++ {
			created, evicted, err := s.Admit(ctx, newDataset("bob", i), 5)
			require.NoError(t, err)
			ids = append(ids, created.ID)
			if i < 6 {
				assert.Empty(t, evicted)
			} else {
				require.Len(t, evicted, 1)
				assert.Equal(t, ids[0], evicted[0].ID)
				assert.Equal(t, "datasets/bob-1.csv", evicted[0].BlobKey)
			}
			advance()
		}

		list, err := s.List(ctx, "bob", 10)
		require.NoError(t, err)
		require.Len(t, list, 5)
		for i, d := range list {
			assert.Equal(t, ids[5-i], d.ID, "newest first")
		}

		_, err = s.Get(ctx, "bob", ids[0])
		assert.ErrorIs(t, err, core.ErrDatasetNotFound)
	})

	t.Run("owners are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		mine, _, err := s.Admit(ctx, newDataset("carol", 1), 5)
		require.NoError(t, err)
		for i := 1; i <= 5; i++ {
			_, evicted, err := s.Admit(ctx, newDataset("dave", i), 5)
			require.NoError(t, err)
			assert.Empty(t, evicted)
			advance()
		}

		_, err = s.Get(ctx, "dave", mine.ID)
		assert.ErrorIs(t, err, core.ErrDatasetNotFound)
		_, err = s.Delete(ctx, "dave", mine.ID)
		assert.ErrorIs(t, err, core.ErrDatasetNotFound)

		list, err := s.List(ctx, "carol", 5)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("delete returns the removed record", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, _, err := s.Admit(ctx, newDataset("erin", 1), 5)
		require.NoError(t, err)

		removed, err := s.Delete(ctx, "erin", created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.BlobKey, removed.BlobKey)

		_, err = s.Delete(ctx, "erin", created.ID)
		assert.ErrorIs(t, err, core.ErrDatasetNotFound)
	})

	t.Run("concurrent uploads never exceed the cap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, _, err := s.Admit(ctx, newDataset("frank", n), 5)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		list, err := s.List(ctx, "frank", 100)
		require.NoError(t, err)
		assert.Len(t, list, 5)
	})

	t.Run("orphans", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.RecordOrphan(ctx, "a.csv", errors.New("denied")))
		advance()
		require.NoError(t, s.RecordOrphan(ctx, "b.csv", errors.New("denied")))

		keys, err := s.Orphans(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.csv", "b.csv"}, keys)

		advance()
		require.NoError(t, s.RecordOrphan(ctx, "a.csv", errors.New("denied again")))

		keys, err = s.Orphans(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.csv", "a.csv"}, keys, "re-recorded key moves to the back")

		keys, err = s.Orphans(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.csv"}, keys)

		require.NoError(t, s.ResolveOrphan(ctx, "a.csv"))
		keys, err = s.Orphans(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.csv"}, keys)
	})
}

// sleepAdvance separates database timestamps between uploads.
func sleepAdvance() {
	time.Sleep(2 * time.Millisecond)
}
