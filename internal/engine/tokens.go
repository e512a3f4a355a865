package engine

import "sync/atomic"

// TokenSource issues request tokens: strictly increasing integers that
// identify each issued operation.
//
// The tracker keeps the token of the latest issuer per (kind, entity) and
// drops settlements carrying any other token. Zero is never issued; the
// tracker reads it as "no token stored".
//
// Thread-safety: TokenSource is safe for concurrent use (atomic operations).
type TokenSource struct {
	seq atomic.Uint64
}

// NewTokenSource creates a source whose first token is 1.
func NewTokenSource() *TokenSource {
	return &TokenSource{}
}

// NewTokenSourceAt creates a source whose next token is start+1.
func NewTokenSourceAt(start uint64) *TokenSource {
	s := &TokenSource{}
	s.seq.Store(start)
	return s
}

// Next returns the next token.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *TokenSource) Next() uint64 {
	return s.seq.Add(1)
}

// Current returns the last issued token without issuing a new one.
func (s *TokenSource) Current() uint64 {
	return s.seq.Load()
}
