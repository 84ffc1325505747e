package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferEvictsOldest(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		rb.Append(i)
	}

	assert.Equal(t, 3, rb.Size())
	assert.Equal(t, []int{3, 4, 5}, rb.GetLatest(10))
	assert.Equal(t, []int{4, 5}, rb.GetLatest(2))
	assert.Equal(t, []int{5, 4, 3}, rb.GetNewestFirst(10))

	last, ok := rb.Last()
	assert.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestRingBufferPartial(t *testing.T) {
	rb := NewRingBuffer[string](4)
	_, ok := rb.Last()
	assert.False(t, ok)
	assert.Empty(t, rb.GetLatest(4))

	rb.Append("a")
	rb.Append("b")
	assert.Equal(t, 2, rb.Size())
	assert.Equal(t, []string{"a", "b"}, rb.GetLatest(4))
	assert.Empty(t, rb.GetLatest(0))
}

func TestRingBufferNeverExceedsCapacity(t *testing.T) {
	rb := NewRingBuffer[int](500)
	for i := 0; i < 1234; i++ {
		rb.Append(i)
		assert.LessOrEqual(t, rb.Size(), 500)
	}
	all := rb.GetLatest(rb.Size())
	assert.Equal(t, 734, all[0])
	assert.Equal(t, 1233, all[len(all)-1])
}
