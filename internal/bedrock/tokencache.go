package bedrock

import (
	"context"
	"sync"
	"time"
)

// refreshWindow is how close to expiry a cached token is still handed
// out. Tokens expiring within the window are refreshed eagerly so an
// in-flight request never carries a token that dies mid-call.
const refreshWindow = 5 * time.Minute

// TokenSource produces a bearer token for the managed runtime endpoint
// along with its expiry time.
type TokenSource func(ctx context.Context) (token string, expiresAt time.Time, err error)

// tokenCache caches the bearer token across invocations. Concurrent
// callers share one refresh.
type tokenCache struct {
	source TokenSource

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func newTokenCache(source TokenSource) *tokenCache {
	return &tokenCache{source: source, now: time.Now}
}

// Get returns a token valid for at least the refresh window, fetching a
// fresh one when the cached token is absent or near expiry.
func (c *tokenCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(refreshWindow).Before(c.expiresAt) {
		return c.token, nil
	}

	token, expiresAt, err := c.source(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}
