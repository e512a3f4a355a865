package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/entity"
)

func e(id string, order int) entity.Entity {
	return entity.Entity{ID: id, Order: order}
}

func TestNew_Empty(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Len())
	assert.Equal(t, uint64(0), snap.Version())
	assert.Empty(t, snap.IDs())
}

func TestNew_InitialOrderAndDuplicates(t *testing.T) {
	s := New(e("a", 0), e("b", 1), entity.Entity{ID: "a", Caption: "second"})

	assert.Equal(t, []string{"a", "b"}, s.Snapshot().IDs())
	got, _ := s.Get("a")
	assert.Equal(t, "second", got.Caption)
}

func TestUpsert_AppendsNewIDs(t *testing.T) {
	s := New()
	s.Upsert(e("a", 0))
	s.Upsert(e("b", 1))

	assert.Equal(t, []string{"a", "b"}, s.Snapshot().IDs())
	assert.Equal(t, 2, s.Len())
}

func TestUpsert_ReplacesInPlace(t *testing.T) {
	s := New(e("a", 0), e("b", 1), e("c", 2))

	s.Upsert(entity.Entity{ID: "b", Order: 1, Caption: "new"})

	assert.Equal(t, []string{"a", "b", "c"}, s.Snapshot().IDs())
	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "new", got.Caption)
}

func TestRemove(t *testing.T) {
	s := New(e("a", 0), e("b", 1))

	s.Remove("a")
	assert.Equal(t, []string{"b"}, s.Snapshot().IDs())
	_, ok := s.Get("a")
	assert.False(t, ok)

	before := s.Snapshot().Version()
	s.Remove("missing")
	assert.Equal(t, before+1, s.Snapshot().Version(), "every call commits")
	assert.Equal(t, []string{"b"}, s.Snapshot().IDs())
}

func TestSnapshot_IsImmutable(t *testing.T) {
	s := New(e("a", 0))
	old := s.Snapshot()

	s.Upsert(e("b", 1))
	s.Remove("a")

	assert.Equal(t, []string{"a"}, old.IDs())
	assert.True(t, old.Has("a"))
	assert.Equal(t, []string{"b"}, s.Snapshot().IDs())
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	s := New(entity.Entity{ID: "a", Meta: map[string]any{"k": "v"}})

	got, _ := s.Get("a")
	got.Meta["k"] = "mutated"
	ids := s.Snapshot().IDs()
	ids[0] = "zzz"
	all := s.Snapshot().Entities()
	all[0].Caption = "mutated"

	again, _ := s.Get("a")
	assert.Equal(t, "v", again.Meta["k"])
	assert.Equal(t, "", again.Caption)
	assert.Equal(t, []string{"a"}, s.Snapshot().IDs())
}

func TestBatch_SingleCommit(t *testing.T) {
	s := New(e("a", 0), e("tmp", 1), e("c", 2))
	var seen []*Snapshot
	s.Subscribe(func(snap *Snapshot) { seen = append(seen, snap) })

	s.Batch(func(tx *Txn) {
		idx := tx.IndexOf("tmp")
		tx.Remove("tmp")
		tx.InsertAt(e("b", 1), idx)
	})

	require.Len(t, seen, 1)
	assert.Equal(t, []string{"a", "b", "c"}, seen[0].IDs())
	assert.Equal(t, uint64(1), seen[0].Version())
}

func TestTxn_InsertAtClampsAndMoves(t *testing.T) {
	s := New(e("a", 0), e("b", 1), e("c", 2))

	s.Batch(func(tx *Txn) { tx.InsertAt(e("x", 0), 99) })
	assert.Equal(t, []string{"a", "b", "c", "x"}, s.Snapshot().IDs())

	s.Batch(func(tx *Txn) { tx.InsertAt(e("x", 0), -3) })
	assert.Equal(t, []string{"x", "a", "b", "c"}, s.Snapshot().IDs())

	s.Batch(func(tx *Txn) { tx.InsertAt(e("c", 2), 1) })
	assert.Equal(t, []string{"x", "c", "a", "b"}, s.Snapshot().IDs())
}

func TestTxn_SetOrder(t *testing.T) {
	s := New(e("a", 0), e("b", 1), e("c", 2), e("d", 3))

	s.Batch(func(tx *Txn) { tx.SetOrder([]string{"c", "unknown", "a", "c"}) })

	assert.Equal(t, []string{"c", "a", "b", "d"}, s.Snapshot().IDs())
}

func TestTxn_ReplaceAll(t *testing.T) {
	s := New(e("a", 0), e("b", 1))

	s.Batch(func(tx *Txn) { tx.ReplaceAll([]entity.Entity{e("b", 0), e("c", 1)}) })

	assert.Equal(t, []string{"b", "c"}, s.Snapshot().IDs())
	assert.False(t, s.Snapshot().Has("a"))
}

func TestTxn_ReadsSeeWorkingCopy(t *testing.T) {
	s := New(e("a", 0))

	s.Batch(func(tx *Txn) {
		tx.Upsert(e("b", 1))
		assert.True(t, tx.Has("b"))
		assert.Equal(t, 2, tx.Len())
		assert.Equal(t, []string{"a", "b"}, tx.IDs())
		assert.Len(t, tx.Entities(), 2)
		got, ok := tx.Get("b")
		assert.True(t, ok)
		assert.Equal(t, 1, got.Order)

		assert.Equal(t, 1, s.Snapshot().Len(), "readers keep the old snapshot during a batch")
	})
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := New()
	count := 0
	unsubscribe := s.Subscribe(func(*Snapshot) { count++ })

	s.Upsert(e("a", 0))
	unsubscribe()
	s.Upsert(e("b", 1))

	assert.Equal(t, 1, count)
}

func TestSubscribe_CommitOrder(t *testing.T) {
	s := New()
	var versions []uint64
	s.Subscribe(func(snap *Snapshot) { versions = append(versions, snap.Version()) })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Upsert(entity.Entity{ID: string(rune('a' + i))})
		}(i)
	}
	wg.Wait()

	require.Len(t, versions, 20)
	for i, v := range versions {
		assert.Equal(t, uint64(i+1), v)
	}
}

func TestConcurrentReadersNeverSeeTornState(t *testing.T) {
	s := New(e("a", 0), e("b", 1))
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := s.Snapshot()
			// Every committed state holds exactly two entities whose ids
			// match the order list.
			ids := snap.IDs()
			if !assert.Len(t, ids, 2) {
				return
			}
			for _, id := range ids {
				assert.True(t, snap.Has(id))
			}
		}
	}()

	for i := 0; i < 500; i++ {
		s.Batch(func(tx *Txn) {
			tx.Remove("b")
			tx.InsertAt(e("b", 0), 0)
		})
	}
	close(stop)
	wg.Wait()
}
