package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/ptlsim/utils/container"
)

func TestPriorityQueueOrder(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	q.Push("c", 3)
	q.Push("a", 1)
	q.Push("b1", 2)
	q.Push("b2", 2)
	q.Push("b3", 2)
	assert.Equal(t, 5, q.Len())

	v, p, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1.0, p)

	// 同优先级按入队顺序
	got := make([]string, 0)
	for q.Len() > 0 {
		v, _ := q.Pop()
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "b3", "c"}, got)

	_, _, ok = q.Peek()
	assert.False(t, ok)
}

func TestPriorityQueuePopUntil(t *testing.T) {
	q := container.NewPriorityQueue[int]()
	for i := 10; i > 0; i-- {
		q.Push(i, float64(i))
	}
	assert.Equal(t, []int{1, 2, 3}, q.PopUntil(3))
	assert.Empty(t, q.PopUntil(3.5))
	assert.Equal(t, 7, q.Len())
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10}, q.PopUntil(100))
}
