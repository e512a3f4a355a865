package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/optisync/internal/entity"
)

// SequentialIDs hands out predictable temporary and correlation ids.
//
// The first TempID is "temp:1", the first CorrelationID is "corr-1". This
// keeps traces and registry keys stable across runs for golden comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu   sync.Mutex
	temp int
	corr int
}

// NewSequentialIDs creates a generator starting at 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// TempID returns the next temporary entity id.
func (g *SequentialIDs) TempID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.temp++
	return fmt.Sprintf("%s%d", entity.TempPrefix, g.temp)
}

// CorrelationID returns the next per-call correlation id.
func (g *SequentialIDs) CorrelationID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.corr++
	return fmt.Sprintf("corr-%d", g.corr)
}
