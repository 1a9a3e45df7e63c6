package fifoqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifoQueue(t *testing.T) {
	var lengths []int
	queue, err := NewFifoQueue[int](WithCapacity(3), WithLengthObserver(func(length int) {
		lengths = append(lengths, length)
	}))
	require.NoError(t, err)

	_, ok := queue.Pop()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		assert.True(t, queue.Push(i))
	}
	assert.False(t, queue.Push(4), "queue is full")
	assert.Equal(t, 3, queue.Len())

	front, ok := queue.Front()
	require.True(t, ok)
	assert.Equal(t, 1, front)

	for i := 1; i <= 2; i++ {
		element, ok := queue.Pop()
		require.True(t, ok)
		assert.Equal(t, i, element)
	}

	queue.Clear()
	assert.Equal(t, 0, queue.Len())
	_, ok = queue.Front()
	assert.False(t, ok)

	assert.Equal(t, []int{1, 2, 3, 2, 1, 0}, lengths)
}

func TestInvalidOptions(t *testing.T) {
	_, err := NewFifoQueue[string](WithCapacity(0))
	assert.Error(t, err)

	_, err = NewFifoQueue[string](WithLengthObserver(nil))
	assert.Error(t, err)
}
