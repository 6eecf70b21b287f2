package kpiprovider

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const sessionKey = "session"

// sessionCache holds the ERP session token so every aggregate call does not
// have to re-authenticate. Tokens expire server-side; the TTL here just has
// to be shorter than the server's.
type sessionCache struct {
	tokens       *ttlcache.Cache[string, string]
	authenticate func(ctx context.Context) (string, error)
}

func newSessionCache(ttl time.Duration, authenticate func(ctx context.Context) (string, error)) *sessionCache {
	tokens := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go tokens.Start()

	return &sessionCache{
		tokens:       tokens,
		authenticate: authenticate,
	}
}

func (s *sessionCache) token(ctx context.Context) (string, error) {
	if item := s.tokens.Get(sessionKey); item != nil {
		return item.Value(), nil
	}

	token, err := s.authenticate(ctx)
	if err != nil {
		return "", err
	}

	s.tokens.Set(sessionKey, token, ttlcache.DefaultTTL)
	return token, nil
}

func (s *sessionCache) drop() {
	s.tokens.Delete(sessionKey)
}
