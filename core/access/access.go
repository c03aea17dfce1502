/*Package access provides utilities for access control.

A request is resolved to exactly one Caller before any handler runs. A caller
is either a user, authenticated against the external identity provider with a
JWT bearer token, or a privileged service, authenticated with the pre-shared
mesh token. Handlers never see raw tokens, they only ever see the resolved
caller.

Callers are added to a request context with

	ctx = access.ContextWithCaller(ctx, caller)

and retrieved with

	caller := access.CallerFromContext(ctx)
*/
package access

import (
	"context"
	"sync"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyCaller contextKey = "_caller_"

// CallerKind discriminates the two ways a request can be authenticated.
type CallerKind string

const (
	// CallerUser is an end user verified by the identity provider
	CallerUser CallerKind = "user"
	// CallerService is a trusted service holding the mesh token. This is a
	// capability, not an identity; there is no user behind it.
	CallerService CallerKind = "service"
)

// Caller is the resolved authentication result for a request.
// UserID and Email are only set for user callers.
type Caller struct {
	Kind   CallerKind `json:"kind"`
	UserID string     `json:"userId,omitempty"`
	Email  string     `json:"email,omitempty"`
}

// IsUser returns true if the caller is an authenticated user.
func (c *Caller) IsUser() bool {
	return c != nil && c.Kind == CallerUser
}

// IsService returns true if the caller is a privileged service.
func (c *Caller) IsService() bool {
	return c != nil && c.Kind == CallerService
}

// ContextWithCaller returns a new context with this caller added to it
func ContextWithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, contextKeyCaller, c)
}

// CallerFromContext retrieves a caller from the context
func CallerFromContext(ctx context.Context) *Caller {
	c, ok := ctx.Value(contextKeyCaller).(*Caller)
	if ok {
		return c
	}
	return nil
}

// IdentityCache is an in-memory cache for verified identities. It is used by
// the bearer middleware to cache identities for bearer tokens.
// The purpose of the cache is to reduce the number of verification calls to
// the identity provider, without the cache the middleware would have to call
// the provider for every single request.
type IdentityCache struct {
	mutex sync.RWMutex
	cache map[string]*Identity
}

// NewIdentityCache creates a new identity cache
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{cache: make(map[string]*Identity)}
}

// Read returns an identity from in-process cache.
// Token should be the temporary token the identity was derived from.
// This function is go-routine safe
func (c *IdentityCache) Read(token string) *Identity {
	c.mutex.RLock()
	identity, ok := c.cache[token]
	c.mutex.RUnlock()
	if ok {
		return identity
	}
	return nil
}

// Write stores an identity in the in-memory cache.
// Token should be the temporary token it was derived from.
// This function is go-routine safe
func (c *IdentityCache) Write(token string, identity *Identity) {
	c.mutex.Lock()
	c.cache[token] = identity
	c.mutex.Unlock()
}
