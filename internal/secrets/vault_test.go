package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	values map[string]string
	calls  int
}

func (f *fakeFetcher) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.calls++
	v, ok := f.values[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, errors.New("SecretNotFound")
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &v}}, nil
}

func TestVaultClient_GetSecretCaches(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]string{"computer-vision-key": "abc"}}
	client := newVaultClient(fetcher, "test-vault", time.Minute)

	for i := 0; i < 3; i++ {
		value, err := client.GetSecret(context.Background(), "computer-vision-key")
		require.NoError(t, err)
		assert.Equal(t, "abc", value)
	}
	assert.Equal(t, 1, fetcher.calls)

	client.ClearCache()
	_, err := client.GetSecret(context.Background(), "computer-vision-key")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestVaultClient_MissingSecret(t *testing.T) {
	client := newVaultClient(&fakeFetcher{values: map[string]string{"empty": ""}}, "test-vault", time.Minute)

	_, err := client.GetSecret(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-vault")

	_, err = client.GetSecret(context.Background(), "empty")
	assert.Error(t, err)
}

func TestNewVaultClient_RequiresName(t *testing.T) {
	_, err := NewVaultClient(&VaultConfig{})
	assert.Error(t, err)
}
