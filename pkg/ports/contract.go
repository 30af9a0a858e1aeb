package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunJobStoreContract runs a suite of tests to verify that a JobStore implementation
// adheres to the defined interface contract.
func RunJobStoreContract(t *testing.T, store JobStore) {
	t.Helper()
	ctx := context.Background()
	jobID := "contract-job-" + time.Now().Format("20060102150405")

	t.Run("Create and Get", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, jobID))

		rec, err := store.Get(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, jobID, rec.ID)
		assert.Equal(t, StatusRunning, rec.Status)
		assert.Zero(t, rec.ProgressCount)
		assert.False(t, rec.CreatedAt.IsZero())
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+jobID)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)

		_, err = store.Result(ctx, "non-existent-"+jobID)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)

		err = store.AppendProgress(ctx, "non-existent-"+jobID, domain.ProgressSnapshot{})
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("Progress Since Offset", func(t *testing.T) {
		id := jobID + "-progress"
		require.NoError(t, store.Create(ctx, id))
		for i := 1; i <= 3; i++ {
			require.NoError(t, store.AppendProgress(ctx, id, domain.ProgressSnapshot{Iteration: i, MaxIterations: 3}))
		}

		all, err := store.ProgressSince(ctx, id, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, 1, all[0].Iteration)

		tail, err := store.ProgressSince(ctx, id, 2)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, 3, tail[0].Iteration)

		none, err := store.ProgressSince(ctx, id, 3)
		require.NoError(t, err)
		assert.Empty(t, none)

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, rec.ProgressCount)
	})

	t.Run("Result Not Ready", func(t *testing.T) {
		id := jobID + "-pending"
		require.NoError(t, store.Create(ctx, id))

		_, err := store.Result(ctx, id)
		assert.ErrorIs(t, err, domain.ErrResultNotReady)
	})

	t.Run("Complete", func(t *testing.T) {
		id := jobID + "-complete"
		require.NoError(t, store.Create(ctx, id))
		require.NoError(t, store.Complete(ctx, id, []byte("solid result")))

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, rec.Status)

		data, err := store.Result(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte("solid result"), data)
	})

	t.Run("Fail", func(t *testing.T) {
		id := jobID + "-fail"
		require.NoError(t, store.Create(ctx, id))
		require.NoError(t, store.Fail(ctx, id, "singular stiffness matrix"))

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, rec.Status)
		assert.Equal(t, "singular stiffness matrix", rec.ErrorMessage)

		_, err = store.Result(ctx, id)
		assert.ErrorIs(t, err, domain.ErrResultNotReady)
	})

	t.Run("Delete", func(t *testing.T) {
		id := jobID + "-delete"
		require.NoError(t, store.Create(ctx, id))
		require.NoError(t, store.AppendProgress(ctx, id, domain.ProgressSnapshot{Iteration: 1}))
		require.NoError(t, store.Delete(ctx, id))

		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrJobNotFound, "Get after Delete should return ErrJobNotFound")
	})
}
