package table_test

import (
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/table"
)

func tameRec(point byte, dist int64) dp.Record {
	return dp.Record{Point: []byte{0x02, point}, Distance: big.NewInt(dist), Kind: dp.Tame}
}

func wildRec(point byte, dist int64) dp.Record {
	return dp.Record{Point: []byte{0x02, point}, Distance: big.NewInt(dist), Kind: dp.Wild}
}

func TestInsertSameKindIsIdempotent(t *testing.T) {
	tb := table.New(table.Config{Shards: 8})

	col, err := tb.Insert(tameRec(1, 10))
	require.NoError(t, err)
	require.Nil(t, col)

	// Same point, same kind, different distance: discarded, no collision.
	col, err = tb.Insert(tameRec(1, 99))
	require.NoError(t, err)
	require.Nil(t, col)

	require.Equal(t, 1, tb.Len())
	st := tb.Stats()
	require.Equal(t, uint64(1), st.Inserted)
	require.Equal(t, uint64(1), st.Duplicate)

	// The committed entry is the first one seen.
	snap := tb.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, int64(10), snap[0].Distance.Int64())
}

func TestCollisionDetectedInEitherOrder(t *testing.T) {
	for _, order := range []string{"tame-first", "wild-first"} {
		t.Run(order, func(t *testing.T) {
			tb := table.New(table.Config{Shards: 8})
			first, second := tameRec(5, 3), wildRec(5, 8)
			if order == "wild-first" {
				first, second = second, first
			}

			col, err := tb.Insert(first)
			require.NoError(t, err)
			require.Nil(t, col)

			col, err = tb.Insert(second)
			require.NoError(t, err)
			require.NotNil(t, col, "second insert of other kind must collide")
			require.Equal(t, first.Kind, col.Existing.Kind)
			require.Equal(t, second.Kind, col.Incoming.Kind)

			_, solved := tb.Solved()
			require.True(t, solved)

			// Post-solve inserts are accepted but not merged.
			_, err = tb.Insert(tameRec(9, 1))
			require.ErrorIs(t, err, table.ErrSolved)
			require.Equal(t, 1, tb.Len())
		})
	}
}

func TestExactlyOneCollisionUnderConcurrency(t *testing.T) {
	tb := table.New(table.Config{})
	_, err := tb.Insert(tameRec(7, 2))
	require.NoError(t, err)

	const racers = 16
	var collisions int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			col, err := tb.Insert(wildRec(7, int64(i)))
			if col != nil {
				mu.Lock()
				collisions++
				mu.Unlock()
			}
			if err != nil && err != table.ErrSolved {
				t.Errorf("unexpected insert error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int64(1), collisions, "collision must be reported exactly once")
}

func TestReopenAfterFalsePositive(t *testing.T) {
	tb := table.New(table.Config{Shards: 4})
	_, err := tb.Insert(tameRec(3, 1))
	require.NoError(t, err)
	col, err := tb.Insert(wildRec(3, 2))
	require.NoError(t, err)
	require.NotNil(t, col)

	tb.Reopen()
	_, solved := tb.Solved()
	require.False(t, solved)

	// Merging works again after the reopen.
	_, err = tb.Insert(tameRec(4, 1))
	require.NoError(t, err)
	require.Equal(t, 2, tb.Len())
}

func TestShardIndexStableAcrossTables(t *testing.T) {
	a := table.New(table.Config{Shards: 256})
	b := table.New(table.Config{Shards: 256})
	for i := 0; i < 500; i++ {
		point := []byte(fmt.Sprintf("\x02point%d", i))
		idx := a.ShardIndex(point)
		require.Equal(t, idx, a.ShardIndex(point), "re-hash must route identically")
		require.Equal(t, idx, b.ShardIndex(point), "routing is a pure function of the encoding")
	}
}

func TestInsertRejectsMalformedRecords(t *testing.T) {
	tb := table.New(table.Config{})
	_, err := tb.Insert(dp.Record{Kind: dp.Tame, Distance: big.NewInt(1)})
	require.ErrorIs(t, err, dp.ErrInvalidRecord)
	_, err = tb.Insert(dp.Record{Point: []byte{1}, Kind: dp.Tame})
	require.ErrorIs(t, err, dp.ErrInvalidRecord)
	require.Equal(t, uint64(2), tb.Stats().Rejected)
	require.Equal(t, 0, tb.Len())
}
