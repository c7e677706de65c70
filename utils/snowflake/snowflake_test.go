package snowflake

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(-1)
	assert.ErrorIs(t, err, ErrInvalidWorkerID)
	_, err = NewGenerator(MaxWorkerID + 1)
	assert.ErrorIs(t, err, ErrInvalidWorkerID)

	g, err := NewGenerator(MaxWorkerID)
	require.NoError(t, err)
	id, err := g.NextID()
	require.NoError(t, err)
	assert.Equal(t, int64(MaxWorkerID), WorkerID(id))
}

func TestNextIDMonotonic(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	var prev int64
	for range 10000 {
		id, err := g.NextID()
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestClockMovedBackwards(t *testing.T) {
	g, _ := NewGenerator(1)
	now := time.Now().UnixMilli()
	g.now = func() int64 { return now }
	_, err := g.NextID()
	require.NoError(t, err)

	g.now = func() int64 { return now - 5 }
	_, err = g.NextID()
	assert.ErrorIs(t, err, ErrClockMovedBackwards)
}

func TestSequenceRollover(t *testing.T) {
	g, _ := NewGenerator(1)
	base := time.Now().UnixMilli()
	calls := 0
	g.now = func() int64 {
		calls++
		if calls > sequenceMask+2 {
			return base + 1
		}
		return base
	}

	seen := make(map[int64]struct{})
	for range sequenceMask + 2 {
		id, err := g.NextID()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestTimestamp(t *testing.T) {
	g, _ := NewGenerator(3)
	before := time.Now().Add(-time.Millisecond)
	id, _ := g.NextID()
	assert.WithinDuration(t, before, Timestamp(id), time.Second)
}

func TestNextStringAndParse(t *testing.T) {
	g, _ := NewGenerator(2)
	s, err := g.NextString()
	require.NoError(t, err)

	id, err := ParseString(s)
	require.NoError(t, err)
	assert.Equal(t, s, strconv.FormatInt(id, 10))

	for _, bad := range []string{"", "0", "-5", "+5", "007", "abc", "12a", "99999999999999999999"} {
		_, err := ParseString(bad)
		assert.ErrorIs(t, err, ErrMalformedID, bad)
	}
}

func TestConcurrentUnique(t *testing.T) {
	g, _ := NewGenerator(9)
	const workers, per = 8, 2000

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		all = make(map[int64]struct{}, workers*per)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for range per {
				id, err := g.NextID()
				if err != nil {
					t.Error(err)
					return
				}
				local = append(local, id)
			}
			mu.Lock()
			for _, id := range local {
				all[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, all, workers*per)
}
