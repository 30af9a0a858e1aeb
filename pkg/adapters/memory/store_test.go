package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/abyss/pkg/adapters/memory"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunJobStoreContract(t, store)
}

func TestMemoryStore_ResultIsCopied(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Create(ctx, "j"))

	payload := []byte("abc")
	require.NoError(t, store.Complete(ctx, "j", payload))
	payload[0] = 'x'

	got, err := store.Result(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Create(ctx, "a"))
	require.NoError(t, store.Create(ctx, "b"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	_, err = store.ProgressSince(ctx, "missing", 0)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
