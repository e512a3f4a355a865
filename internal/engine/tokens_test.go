package engine

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/entity"
)

func TestTokenSource_StartsAtOne(t *testing.T) {
	ts := NewTokenSource()
	assert.Equal(t, uint64(0), ts.Current())
	assert.Equal(t, uint64(1), ts.Next())
	assert.Equal(t, uint64(2), ts.Next())
	assert.Equal(t, uint64(2), ts.Current())
}

func TestTokenSource_ResumesAfterStart(t *testing.T) {
	ts := NewTokenSourceAt(41)
	assert.Equal(t, uint64(42), ts.Next())
}

func TestTokenSource_ConcurrentTokensAreUnique(t *testing.T) {
	ts := NewTokenSource()
	const workers, each = 8, 500

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, each)
			for i := 0; i < each; i++ {
				local = append(local, ts.Next())
			}
			mu.Lock()
			for _, tok := range local {
				seen[tok] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*each)
	assert.Equal(t, uint64(workers*each), ts.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}

	tmp := g.TempID()
	assert.True(t, entity.IsTemp(tmp))
	assert.NotEqual(t, tmp, g.TempID())

	corr := g.CorrelationID()
	parsed, err := uuid.Parse(corr)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.False(t, strings.HasPrefix(corr, entity.TempPrefix))
}
