package container

import "container/heap"

// item 优先队列中的单个元素
// seq为入队序号，优先级相同时按入队顺序出队，保证同一种子下事件顺序可复现
type item[T any] struct {
	Value    T
	Priority float64
	seq      uint64
	index    int
}

type priorityQueue[T any] []*item[T]

func (pq priorityQueue[T]) Len() int { return len(pq) }

func (pq priorityQueue[T]) Less(i, j int) bool {
	if pq[i].Priority == pq[j].Priority {
		return pq[i].seq < pq[j].seq
	}
	return pq[i].Priority < pq[j].Priority
}

func (pq priorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue[T]) Push(x any) {
	it := x.(*item[T])
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	it.index = -1
	*pq = old[0 : n-1]
	return it
}

// PriorityQueue 稳定的最小优先队列
// 功能：按优先级（越小越优先）管理事件，例如车流的下一次发车时刻
// 说明：与container/heap不同，同优先级元素严格按入队顺序弹出
type PriorityQueue[T any] struct {
	queue priorityQueue[T]
	seq   uint64
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(priorityQueue[T], 0)}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// Peek 查看队首元素与其优先级，不出队
// 队列为空时ok为false
func (q *PriorityQueue[T]) Peek() (value T, priority float64, ok bool) {
	if len(q.queue) == 0 {
		return value, 0, false
	}
	return q.queue[0].Value, q.queue[0].Priority, true
}

// Push 入队并维护堆结构
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	heap.Push(&q.queue, &item[T]{
		Value:    value,
		Priority: priority,
		seq:      q.seq,
	})
	q.seq++
}

// Pop 弹出优先级数值最小的元素
// 功能：移除并返回队首元素
// 说明：队列为空时panic，调用方应先检查Len或使用PopUntil
func (q *PriorityQueue[T]) Pop() (value T, priority float64) {
	it := heap.Pop(&q.queue).(*item[T])
	return it.Value, it.Priority
}

// PopUntil 弹出所有优先级不超过limit的元素
// 功能：按出队顺序返回所有到期事件
// 参数：limit-优先级上限（含）
// 返回：到期元素列表（可能为空）
func (q *PriorityQueue[T]) PopUntil(limit float64) []T {
	res := make([]T, 0)
	for len(q.queue) > 0 && q.queue[0].Priority <= limit {
		v, _ := q.Pop()
		res = append(res, v)
	}
	return res
}
