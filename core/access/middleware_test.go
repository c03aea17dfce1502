package access_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshworks/twin-registry/core/access"
)

type fakeVerifier struct {
	identities map[string]access.Identity
	calls      int
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (access.Identity, error) {
	v.calls++
	identity, ok := v.identities[token]
	if !ok {
		return access.Identity{}, fmt.Errorf("unknown token")
	}
	return identity, nil
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).
		SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

// newRouter builds a router with both middlewares and a terminal handler
// that records the resolved caller.
func newRouter(verifier access.Verifier, meshToken string, caller **access.Caller) *mux.Router {
	router := mux.NewRouter()
	router.Use(access.NewMeshTokenMiddleware(&access.MeshTokenMiddlewareBuilder{Token: meshToken}))
	router.Use(access.NewBearerMiddleware(&access.BearerMiddlewareBuilder{Verifier: verifier}))
	router.HandleFunc("/probe", func(w http.ResponseWriter, r *http.Request) {
		*caller = access.CallerFromContext(r.Context())
	})
	return router
}

func TestBearerResolvesUserCaller(t *testing.T) {
	token := signToken(t, "user-1")
	verifier := &fakeVerifier{identities: map[string]access.Identity{
		token: {ID: "user-1", Email: "one@example.com"},
	}}
	var caller *access.Caller
	router := newRouter(verifier, "secret", &caller)

	r := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, caller)
	assert.True(t, caller.IsUser())
	assert.False(t, caller.IsService())
	assert.Equal(t, "user-1", caller.UserID)
	assert.Equal(t, "one@example.com", caller.Email)
}

func TestBearerCachesVerifiedTokens(t *testing.T) {
	token := signToken(t, "user-1")
	verifier := &fakeVerifier{identities: map[string]access.Identity{
		token: {ID: "user-1"},
	}}
	var caller *access.Caller
	router := newRouter(verifier, "secret", &caller)

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/probe", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(httptest.NewRecorder(), r)
	}
	assert.Equal(t, 1, verifier.calls)
}

func TestBearerFailsClosed(t *testing.T) {
	verifier := &fakeVerifier{identities: map[string]access.Identity{}}
	var caller *access.Caller
	router := newRouter(verifier, "secret", &caller)

	// rejected by the provider
	r := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, "nobody"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, verifier.calls)

	// malformed token, rejected without a provider call
	r = httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, verifier.calls)

	// malformed header scheme
	r = httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, verifier.calls)
}

func TestNoTokenPassesThroughUnauthenticated(t *testing.T) {
	verifier := &fakeVerifier{}
	caller := &access.Caller{Kind: "sentinel"}
	router := newRouter(verifier, "secret", &caller)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Nil(t, caller, "no credentials resolve to no caller")
	assert.Equal(t, 0, verifier.calls)
}

func TestMeshTokenResolvesServiceCaller(t *testing.T) {
	verifier := &fakeVerifier{}
	var caller *access.Caller
	router := newRouter(verifier, "secret", &caller)

	r := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.Header.Set("X-Mesh-Token", "secret")
	router.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, caller)
	assert.True(t, caller.IsService())
	assert.False(t, caller.IsUser())
	assert.Empty(t, caller.UserID, "a capability check carries no user identity")
}

func TestWrongMeshTokenIsIgnored(t *testing.T) {
	verifier := &fakeVerifier{}
	caller := &access.Caller{Kind: "sentinel"}
	router := newRouter(verifier, "secret", &caller)

	r := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.Header.Set("X-Mesh-Token", "wrong")
	router.ServeHTTP(httptest.NewRecorder(), r)
	assert.Nil(t, caller)
}

func TestMeshTokenWinsOverBearer(t *testing.T) {
	// when both credentials are present, the caller is resolved once and
	// stays a service caller; the bearer token is not even verified
	token := signToken(t, "user-1")
	verifier := &fakeVerifier{identities: map[string]access.Identity{
		token: {ID: "user-1"},
	}}
	var caller *access.Caller
	router := newRouter(verifier, "secret", &caller)

	r := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.Header.Set("X-Mesh-Token", "secret")
	r.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, caller)
	assert.True(t, caller.IsService())
	assert.Equal(t, 0, verifier.calls)
}

func TestMiddlewareBuildersPanicOnMissingInput(t *testing.T) {
	assert.Panics(t, func() { access.NewBearerMiddleware(&access.BearerMiddlewareBuilder{}) })
	assert.Panics(t, func() { access.NewMeshTokenMiddleware(&access.MeshTokenMiddlewareBuilder{}) })
}
