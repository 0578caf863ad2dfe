package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushThenPopAllDrainsBatch(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	items, ok := q.PopAll()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, items)
	assert.Equal(t, 0, q.Len())
}

func TestPopAllBlocksUntilPush(t *testing.T) {
	q := New[string]()

	var wg sync.WaitGroup
	var got []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		items, ok := q.PopAll()
		if ok {
			got = items
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push("a")
	wg.Wait()

	assert.Equal(t, []string{"a"}, got)
}

func TestCloseUnblocksPopAll(t *testing.T) {
	q := New[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.PopAll()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("PopAll did not unblock after Close")
	}
}

func TestPopAllOnClosedEmptyQueueReturnsImmediately(t *testing.T) {
	q := New[int]()
	q.Close()

	items, ok := q.PopAll()
	assert.False(t, ok)
	assert.Nil(t, items)
}

func TestPopAllStillDrainsPendingAfterClose(t *testing.T) {
	q := New[int]()
	q.Push(42)
	q.Close()

	items, ok := q.PopAll()
	assert.True(t, ok)
	assert.Equal(t, []int{42}, items)
}
