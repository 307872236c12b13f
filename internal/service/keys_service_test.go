package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

func TestApiKeyService_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	keys := NewApiKeyService(repository.NewApiKeyRepository(h.db), h.clock)

	key, err := keys.Create(ctx, "alice")
	require.NoError(t, err)

	actor, err := keys.GetActor(ctx, key.ApiKey)
	require.NoError(t, err)
	assert.Equal(t, "alice", actor)

	_, err = keys.GetActor(ctx, "pq_unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, keys.RemoveAPIKey(ctx, "bob", key.ID), models.ErrNotFound, "keys belong to their actor")
	require.NoError(t, keys.RemoveAPIKey(ctx, "alice", key.ID))

	_, err = keys.GetActor(ctx, key.ApiKey)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestApiKeyService_Limit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	keys := NewApiKeyService(repository.NewApiKeyRepository(h.db), h.clock)

	for i := 0; i < maxKeysPerActor; i++ {
		_, err := keys.Create(ctx, "alice")
		require.NoError(t, err)
	}
	_, err := keys.Create(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrConflict)

	list, err := keys.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, maxKeysPerActor)
}
