package keystore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwalletlab/wallet-core/config"
	"github.com/openwalletlab/wallet-core/internal/keyaccess"
	"github.com/openwalletlab/wallet-core/pkg/storage"
)

func testKeyStoreService(t *testing.T) (*Service, storage.ServiceStorage) {
	t.Helper()
	db := storage.NewMemoryDB()
	service, err := NewKeyStoreService(config.KeyStoreServiceConfig{
		BaseServiceConfig:  &config.BaseServiceConfig{Name: "keystore"},
		ServiceKeyPassword: "test-password",
	}, db)
	require.NoError(t, err)
	return service, db
}

func TestGetOrCreateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a did:key on first use", func(t *testing.T) {
		service, _ := testKeyStoreService(t)

		details, err := service.GetOrCreateKey(ctx, PurposeHolder)
		assert.NoError(t, err)
		require.NotNil(t, details)
		assert.True(t, strings.HasPrefix(details.Controller, "did:key:"))
		assert.True(t, strings.HasPrefix(details.ID, details.Controller))
		assert.NotEmpty(t, details.CreatedAt)
	})

	t.Run("reuses the key on subsequent calls", func(t *testing.T) {
		service, _ := testKeyStoreService(t)

		first, err := service.GetOrCreateKey(ctx, PurposeHolder)
		require.NoError(t, err)
		second, err := service.GetOrCreateKey(ctx, PurposeHolder)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Controller, second.Controller)
	})

	t.Run("keys survive a service restart", func(t *testing.T) {
		service, db := testKeyStoreService(t)

		created, err := service.GetOrCreateKey(ctx, PurposeHolder)
		require.NoError(t, err)

		// a second service over the same storage stands in for a restart
		restarted, err := NewKeyStoreService(config.KeyStoreServiceConfig{
			BaseServiceConfig:  &config.BaseServiceConfig{Name: "keystore"},
			ServiceKeyPassword: "test-password",
		}, db)
		require.NoError(t, err)

		details, err := restarted.GetOrCreateKey(ctx, PurposeHolder)
		require.NoError(t, err)
		assert.Equal(t, created.ID, details.ID)
		assert.Equal(t, created.Controller, details.Controller)

		token, err := restarted.Sign(ctx, PurposeHolder, map[string]any{"nonce": "n-3"})
		assert.NoError(t, err)
		require.NotNil(t, token)
	})

	t.Run("a wrong password cannot decrypt stored keys", func(t *testing.T) {
		service, db := testKeyStoreService(t)

		_, err := service.GetOrCreateKey(ctx, PurposeHolder)
		require.NoError(t, err)

		other, err := NewKeyStoreService(config.KeyStoreServiceConfig{
			BaseServiceConfig:  &config.BaseServiceConfig{Name: "keystore"},
			ServiceKeyPassword: "wrong-password",
		}, db)
		require.NoError(t, err)

		_, err = other.GetOrCreateKey(ctx, PurposeHolder)
		assert.ErrorContains(t, err, "could not decrypt key for purpose")
	})

	t.Run("keys are encrypted at rest", func(t *testing.T) {
		service, db := testKeyStoreService(t)

		details, err := service.GetOrCreateKey(ctx, PurposeHolder)
		require.NoError(t, err)

		raw, err := db.Read(ctx, namespace, PurposeHolder)
		require.NoError(t, err)
		require.NotEmpty(t, raw)
		assert.NotContains(t, string(raw), details.Controller)
	})
}

func TestSign(t *testing.T) {
	ctx := context.Background()

	t.Run("signs claims with the holder key", func(t *testing.T) {
		service, _ := testKeyStoreService(t)

		_, err := service.GetOrCreateKey(ctx, PurposeHolder)
		require.NoError(t, err)

		token, err := service.Sign(ctx, PurposeHolder, map[string]any{"nonce": "n-1"})
		assert.NoError(t, err)
		require.NotNil(t, token)
		assert.Equal(t, 3, len(strings.Split(token.String(), ".")))
	})

	t.Run("signing without a key fails", func(t *testing.T) {
		service, _ := testKeyStoreService(t)

		_, err := service.Sign(ctx, "unknown", map[string]any{"nonce": "n-1"})
		assert.ErrorContains(t, err, "no key found for purpose")
	})
}

func TestSigner(t *testing.T) {
	ctx := context.Background()
	service, _ := testKeyStoreService(t)

	details, err := service.GetOrCreateKey(ctx, PurposeHolder)
	require.NoError(t, err)

	signer, err := service.Signer(ctx, PurposeHolder)
	assert.NoError(t, err)
	require.NotNil(t, signer)

	token, err := signer.Sign(map[string]any{"nonce": "n-2"})
	require.NoError(t, err)
	headers, err := keyaccess.GetJWTHeaders([]byte(token.String()))
	require.NoError(t, err)
	kid, ok := headers.Get("kid")
	assert.True(t, ok)
	assert.Equal(t, details.ID, kid)
}
