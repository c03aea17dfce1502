package access_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshworks/twin-registry/core/access"
)

func TestIdentityClientVerify(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))

		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"user-1","email":"one@example.com"}`))
		case "Bearer empty-user":
			w.Write([]byte(`{}`))
		default:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}))
	defer provider.Close()

	client := access.MustNewIdentityClient(&access.IdentityClientBuilder{
		URL:    provider.URL,
		APIKey: "test-api-key",
	})

	identity, err := client.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, access.Identity{ID: "user-1", Email: "one@example.com"}, identity)

	_, err = client.Verify(context.Background(), "bad-token")
	assert.Error(t, err, "provider rejection fails closed")

	_, err = client.Verify(context.Background(), "empty-user")
	assert.Error(t, err, "absent user record fails closed")
}

func TestIdentityClientVerifyUnreachableProvider(t *testing.T) {
	client := access.MustNewIdentityClient(&access.IdentityClientBuilder{
		URL:    "http://127.0.0.1:1",
		APIKey: "test-api-key",
	})
	_, err := client.Verify(context.Background(), "any-token")
	assert.Error(t, err)
}

func TestMustNewIdentityClientPanicsOnMissingInput(t *testing.T) {
	assert.Panics(t, func() {
		access.MustNewIdentityClient(&access.IdentityClientBuilder{APIKey: "k"})
	})
	assert.Panics(t, func() {
		access.MustNewIdentityClient(&access.IdentityClientBuilder{URL: "http://localhost"})
	})
}
