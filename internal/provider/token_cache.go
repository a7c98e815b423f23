package provider

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
)

const maxTokenCacheTTL = time.Hour

// TokenCache holds vendor access tokens per connection.  Entries are dropped
// when the token expires, when the vendor rejects it, or after
// maxTokenCacheTTL regardless of the advertised lifetime.
type TokenCache struct {
	cache *expirable.LRU[string, *oauth2.Token]
}

func NewTokenCache(size int) *TokenCache {
	if size <= 0 {
		size = 128
	}
	return &TokenCache{cache: expirable.NewLRU[string, *oauth2.Token](size, nil, maxTokenCacheTTL)}
}

// Get returns a cached token that is still valid
func (c *TokenCache) Get(key string) (*oauth2.Token, bool) {
	tok, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if !tok.Valid() {
		c.cache.Remove(key)
		return nil, false
	}
	return tok, true
}

func (c *TokenCache) Put(key string, tok *oauth2.Token) {
	c.cache.Add(key, tok)
}

func (c *TokenCache) Invalidate(key string) {
	c.cache.Remove(key)
}

func (c *TokenCache) Len() int {
	return c.cache.Len()
}
