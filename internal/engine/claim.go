package engine

import (
	"sync"

	"github.com/google/uuid"
)

// ClaimTokenGenerator generates unique claim tokens, one per tick.
// Implemented by UUIDv7Generator (production) and FixedGenerator
// (tests).
type ClaimTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 claim tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so claim
// tokens sort by creation time - convenient when inspecting the
// articles table during an incident.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent
// use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined claim tokens for testing.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
// Generate panics once all tokens are consumed - a fail-fast guard
// against test misconfiguration.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
