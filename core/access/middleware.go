package access

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/meshworks/twin-registry/core/logger"
)

// BearerMiddlewareBuilder is a helper builder for the bearer middleware
type BearerMiddlewareBuilder struct {
	// Verifier confirms bearer tokens with the identity provider.
	// This is mandatory.
	Verifier Verifier
}

// NewBearerMiddleware returns a middleware handler to resolve user callers
// from JWT bearer tokens.
//
// Tokens are accepted as "Authorization: Bearer" header. Requests without a
// token pass through unauthenticated; handlers that require a user caller
// answer those with 401. A malformed token is rejected right away, without a
// call to the identity provider.
//
// This is a final handler with regards to the bearer token. It will return
// http.StatusUnauthorized when a token is available but insufficient to
// authenticate the request.
func NewBearerMiddleware(b *BearerMiddlewareBuilder) mux.MiddlewareFunc {

	if b.Verifier == nil {
		panic("Verifier is missing")
	}

	identityCache := NewIdentityCache()
	parser := jwt.NewParser()

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CallerFromContext(r.Context()) != nil { // already resolved?
				h.ServeHTTP(w, r)
				return
			}

			bearer := r.Header.Get("Authorization")
			if len(bearer) == 0 || bearer == "null" {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			tokenString := ""
			if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
				tokenString = bearer[7:]
			}
			if len(tokenString) == 0 {
				writeUnauthorized(w, "invalid authorization header")
				return
			}

			// fail fast on tokens that are not even JWTs, the identity
			// provider would reject them anyway
			if _, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{}); err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}

			// look up the identity for the token. We do this by tokenString,
			// so a new token enforces a new verification call.
			identity := identityCache.Read(tokenString)
			if identity == nil {
				verified, err := b.Verifier.Verify(r.Context(), tokenString)
				if err != nil {
					logger.FromContext(r.Context()).WithError(err).Debugln("token verification failed")
					writeUnauthorized(w, "invalid token")
					return
				}
				identity = &verified
				identityCache.Write(tokenString, identity)
			}

			caller := &Caller{
				Kind:   CallerUser,
				UserID: identity.ID,
				Email:  identity.Email,
			}
			ctx := ContextWithCaller(r.Context(), caller)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity.Email)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MeshTokenMiddlewareBuilder is a helper builder for the mesh token middleware
type MeshTokenMiddlewareBuilder struct {
	// Token is the pre-shared secret for trusted service-to-service
	// calls. This is mandatory.
	Token string
}

// NewMeshTokenMiddleware returns a middleware handler that resolves a
// privileged service caller from the X-Mesh-Token header.
//
// This is a capability check, not an identity check: the resolved caller
// carries no user id and the logger identity is recorded as "service".
// Requests without the header, or with a wrong token, pass through untouched
// and can still authenticate as users further down the chain.
func NewMeshTokenMiddleware(b *MeshTokenMiddlewareBuilder) mux.MiddlewareFunc {

	if len(b.Token) == 0 {
		panic("mesh token is missing")
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CallerFromContext(r.Context()) != nil { // already resolved?
				h.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-Mesh-Token")
			if len(key) > 0 && key == b.Token {
				caller := &Caller{Kind: CallerService}
				ctx := ContextWithCaller(r.Context(), caller)
				ctx, _ = logger.ContextWithLoggerIdentity(ctx, "service")
				r = r.WithContext(ctx)
			}

			h.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	jsonData, _ := json.Marshal(map[string]string{"error": message})
	w.Write(jsonData)
}
