package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type csrfToken struct {
	bearer  string
	expires time.Time
}

// CSRFStore issues single use anti-forgery tokens bound to the bearer that requested them.
type CSRFStore struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]csrfToken
}

func NewCSRFStore(ttl time.Duration) *CSRFStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CSRFStore{ttl: ttl, now: time.Now, tokens: map[string]csrfToken{}}
}

// Issue returns a new token for the bearer.
func (s *CSRFStore) Issue(bearer string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, v := range s.tokens {
		if now.After(v.expires) {
			delete(s.tokens, t)
		}
	}

	token := uuid.NewString()
	s.tokens[token] = csrfToken{bearer: bearer, expires: now.Add(s.ttl)}
	return token
}

// Consume validates and invalidates a token.
func (s *CSRFStore) Consume(bearer, token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.tokens[token]
	if !ok {
		return false
	}
	delete(s.tokens, token)

	return v.bearer == bearer && !s.now().After(v.expires)
}
