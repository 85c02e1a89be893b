package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwalletlab/wallet-core/pkg/storage"
)

func testCredentialService(t *testing.T) *Service {
	t.Helper()
	service, err := NewCredentialService(storage.NewMemoryDB())
	require.NoError(t, err)
	return service
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("stores with issuer-assigned id", func(t *testing.T) {
		service := testCredentialService(t)

		stored, err := service.Add(ctx, AddCredentialRequest{
			ID:              "cred-1",
			Issuer:          "https://issuer.example",
			ConfigurationID: "EmployeeID_JWT",
			Format:          "jwt_vc_json",
			CredentialJWT:   "eyJhbGciOi.e30.sig",
		})
		assert.NoError(t, err)
		assert.Equal(t, "cred-1", stored.ID)
		assert.NotEmpty(t, stored.AddedAt)

		got, err := service.Get(ctx, "cred-1")
		assert.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, *stored, *got)
	})

	t.Run("derives an id from the credential when none given", func(t *testing.T) {
		service := testCredentialService(t)

		stored, err := service.Add(ctx, AddCredentialRequest{
			Issuer:        "https://issuer.example",
			CredentialJWT: "eyJhbGciOi.e30.sig",
		})
		assert.NoError(t, err)
		assert.Len(t, stored.ID, 64)

		again, err := service.Add(ctx, AddCredentialRequest{
			Issuer:        "https://issuer.example",
			CredentialJWT: "eyJhbGciOi.e30.sig",
		})
		assert.NoError(t, err)
		assert.Equal(t, stored.ID, again.ID)

		creds, err := service.List(ctx)
		assert.NoError(t, err)
		assert.Len(t, creds, 1)
	})

	t.Run("rejects an empty credential", func(t *testing.T) {
		service := testCredentialService(t)

		_, err := service.Add(ctx, AddCredentialRequest{Issuer: "https://issuer.example"})
		assert.ErrorContains(t, err, "without a credential value")
	})
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	service := testCredentialService(t)

	_, err := service.Add(ctx, AddCredentialRequest{ID: "a", CredentialJWT: "jwt-a"})
	require.NoError(t, err)
	_, err = service.Add(ctx, AddCredentialRequest{ID: "b", CredentialJWT: "jwt-b"})
	require.NoError(t, err)

	creds, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, creds, 2)

	err = service.Delete(ctx, "a")
	assert.NoError(t, err)

	creds, err = service.List(ctx)
	assert.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "b", creds[0].ID)

	got, err := service.Get(ctx, "a")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// deleting an absent record is a no-op
	assert.NoError(t, service.Delete(ctx, "missing"))
}
