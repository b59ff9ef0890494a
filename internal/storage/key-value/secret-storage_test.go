package key_value

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func newTestStorage(t *testing.T, prefix string) (*SecretStorage, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSecretStorage(rdb, prefix), server
}

func TestSecretStorage(t *testing.T) {
	ctx := context.Background()
	storage, server := newTestStorage(t, "sdk:")

	_, err := storage.ReadSecret(ctx, "access-token", "user")
	require.ErrorIs(t, err, model.ErrSecretDoesNotExist)

	require.NoError(t, storage.SaveSecret(ctx, "first", "access-token", "user"))
	require.NoError(t, storage.SaveSecret(ctx, "second", "access-token", "user"))
	assert.True(t, server.Exists("sdk:secret_access-token_user"))

	value, err := storage.ReadSecret(ctx, "access-token", "user")
	require.NoError(t, err)
	assert.Equal(t, "second", value)

	require.NoError(t, storage.DeleteSecret(ctx, "access-token", "user"))
	require.NoError(t, storage.DeleteSecret(ctx, "access-token", "user"))
	_, err = storage.ReadSecret(ctx, "access-token", "user")
	assert.ErrorIs(t, err, model.ErrSecretDoesNotExist)
}

func TestSecretStorageCorruptValue(t *testing.T) {
	storage, server := newTestStorage(t, "")
	require.NoError(t, server.Set("secret_apple-id-token_user", "not json"))

	_, err := storage.ReadSecret(context.Background(), "apple-id-token", "user")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrSecretDoesNotExist)
}

func TestSecretStorageUnavailable(t *testing.T) {
	storage, server := newTestStorage(t, "")
	server.Close()

	err := storage.SaveSecret(context.Background(), "v", "access-token", "user")
	assert.Error(t, err)
	_, err = storage.ReadSecret(context.Background(), "access-token", "user")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrSecretDoesNotExist)
}
