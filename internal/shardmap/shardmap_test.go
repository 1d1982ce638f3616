package shardmap

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intKey(k int) []byte {
	return []byte(strconv.Itoa(k))
}

func TestSetGet(t *testing.T) {
	m := New[int, string](intKey)

	_, ok := m.Get(1)
	assert.False(t, ok)

	m.Set(1, "one")
	v, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
}

func TestDelete(t *testing.T) {
	m := New[int, string](intKey)
	m.Set(1, "one")

	assert.True(t, m.Delete(1))
	assert.False(t, m.Delete(1))

	_, ok := m.Get(1)
	assert.False(t, ok)
}

func TestTakeIsGetThenDelete(t *testing.T) {
	m := New[int, string](intKey)
	m.Set(1, "one")

	v, ok := m.Take(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	_, ok = m.Get(1)
	assert.False(t, ok)

	_, ok = m.Take(1)
	assert.False(t, ok)
}

func TestUpdate(t *testing.T) {
	m := New[int, int](intKey)

	result := m.Update(1, func(cur int, ok bool) int {
		assert.False(t, ok)
		return cur + 1
	})
	assert.Equal(t, 1, result)

	result = m.Update(1, func(cur int, ok bool) int {
		assert.True(t, ok)
		return cur + 1
	})
	assert.Equal(t, 2, result)
}

func TestRangeSnapshot(t *testing.T) {
	m := New[int, int](intKey)
	for i := 0; i < 50; i++ {
		m.Set(i, i*i)
	}

	seen := make(map[int]int)
	m.Range(func(k, v int) {
		seen[k] = v
	})

	assert.Len(t, seen, 50)
	assert.Equal(t, 49*49, seen[49])
}

func TestDeleteIf(t *testing.T) {
	m := New[int, int](intKey)
	for i := 0; i < 10; i++ {
		m.Set(i, i)
	}

	var deleted []int
	m.DeleteIf(func(k, v int) bool {
		return v%2 == 0
	}, func(k, v int) {
		deleted = append(deleted, k)
	})

	assert.Len(t, deleted, 5)
	for i := 0; i < 10; i++ {
		_, ok := m.Get(i)
		assert.Equal(t, i%2 != 0, ok)
	}
}

// TestConcurrentAccess exercises many goroutines hammering distinct keys at
// once; the race detector (not the assertions) is what actually proves the
// per-shard locking is sound.
func TestConcurrentAccess(t *testing.T) {
	m := New[int, int](intKey)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Set(n, n)
			m.Get(n)
			m.Update(n, func(cur int, ok bool) int { return cur + 1 })
		}(i)
	}
	wg.Wait()

	count := 0
	m.Range(func(k, v int) { count++ })
	assert.Equal(t, 200, count)
}
