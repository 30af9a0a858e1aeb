package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/abyss/pkg/adapters/redis"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setup(t)

	store := redis.NewFromClient(client)
	ports.RunJobStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := setup(t)

	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "job-ttl"))
	require.NoError(t, store.AppendProgress(ctx, "job-ttl", domain.ProgressSnapshot{Iteration: 1}))

	_, err := store.Get(ctx, "job-ttl")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = store.Get(ctx, "job-ttl")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.False(t, mr.Exists("abyss:job:job-ttl:progress"))
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := setup(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "my-job"))
	require.NoError(t, store.Complete(ctx, "my-job", []byte("solid")))

	assert.True(t, mr.Exists("custom:app:my-job"), "Expected hash with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:my-job:result"), "Expected result with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, "my-job")
}

func TestRedisStore_CreateResetsPreviousJob(t *testing.T) {
	_, client := setup(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "j"))
	require.NoError(t, store.AppendProgress(ctx, "j", domain.ProgressSnapshot{Iteration: 1}))
	require.NoError(t, store.Complete(ctx, "j", []byte("old")))

	require.NoError(t, store.Create(ctx, "j"))

	rec, err := store.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, ports.StatusRunning, rec.Status)
	assert.Zero(t, rec.ProgressCount)

	_, err = store.Result(ctx, "j")
	assert.ErrorIs(t, err, domain.ErrResultNotReady)
}

func TestRedisStore_Ping(t *testing.T) {
	_, client := setup(t)
	store := redis.NewFromClient(client)
	assert.NoError(t, store.Ping(context.Background()))
}
