package access

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Identity is the caller identity confirmed by the identity provider.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verifier confirms a bearer token with the identity provider.
//
// Implementations return the identity behind the token, or an error when the
// provider rejects the token, the user record is absent, or the provider
// cannot be reached. The middleware treats any error as an authentication
// failure and fails closed.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// IdentityClientBuilder is a builder helper for the IdentityClient
type IdentityClientBuilder struct {
	// URL is the base URL of the identity provider,
	// e.g. "https://xyz.supabase.co". This is mandatory.
	URL string
	// APIKey is the provider's public api key, sent with every
	// verification call. This is mandatory.
	APIKey string
	// HTTPClient is optional. The default is a client with a
	// ten second timeout.
	HTTPClient *http.Client
}

// IdentityClient verifies bearer tokens against a GoTrue-style
// identity provider endpoint (GET {url}/auth/v1/user).
type IdentityClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// MustNewIdentityClient realizes the identity client.
func MustNewIdentityClient(b *IdentityClientBuilder) *IdentityClient {
	if len(b.URL) == 0 {
		panic("identity provider URL is missing")
	}
	if len(b.APIKey) == 0 {
		panic("identity provider api key is missing")
	}
	httpClient := b.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &IdentityClient{
		url:        b.URL,
		apiKey:     b.APIKey,
		httpClient: httpClient,
	}
}

// Verify delegates token validation to the identity provider. Any provider
// error, non-OK status or absent user record yields an error.
func (c *IdentityClient) Verify(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/auth/v1/user", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("cannot reach identity provider: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return Identity{}, fmt.Errorf("identity provider rejected token with status %d", res.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(res.Body).Decode(&identity); err != nil {
		return Identity{}, fmt.Errorf("cannot decode identity: %w", err)
	}
	if len(identity.ID) == 0 {
		return Identity{}, fmt.Errorf("identity provider returned no user record")
	}
	return identity, nil
}
