package container

import (
	"sync"
)

// IIndexed 可被ActiveSet管理的元素
// 元素自己记录其在集合中的下标，删除时用于O(1)定位
type IIndexed interface {
	Index() int
	SetIndex(index int)
}

// IndexedBase 下标管理的嵌入实现
type IndexedBase struct {
	index int
}

func (b *IndexedBase) Index() int {
	return b.index
}

func (b *IndexedBase) SetIndex(index int) {
	b.index = index
}

// ActiveSet 带缓冲的活跃元素集合
// 功能：维护仿真中"在网"的元素（例如车辆），一个仿真步内的加入与离开先写入缓冲区，
// 在Commit时统一生效，因此遍历Data期间可以安全地调用Add/Remove
// 说明：删除采用"末尾元素补位"，顺序由操作序列唯一决定
type ActiveSet[T IIndexed] struct {
	data    []T
	pending []T
	leaving []T
	mtx     sync.Mutex
}

// NewActiveSet 创建空集合
func NewActiveSet[T IIndexed]() *ActiveSet[T] {
	return &ActiveSet[T]{
		data:    make([]T, 0),
		pending: make([]T, 0),
		leaving: make([]T, 0),
	}
}

// Len 已生效的元素数量
func (a *ActiveSet[T]) Len() int {
	return len(a.data)
}

// Data 已生效的元素（只读视图，不要在外部修改）
func (a *ActiveSet[T]) Data() []T {
	return a.data
}

// Add 登记加入（Commit后生效）
func (a *ActiveSet[T]) Add(value T) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.pending = append(a.pending, value)
}

// Remove 登记离开（Commit后生效）
// 同一元素在一次Commit前只能Remove一次
func (a *ActiveSet[T]) Remove(value T) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.leaving = append(a.leaving, value)
}

// Commit 应用缓冲区中的加入与离开
// 算法说明：
// 1. 逐个删除：用当前末尾元素覆盖被删除位置，截短数组
// 2. 新元素追加到末尾并写入下标
func (a *ActiveSet[T]) Commit() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	for _, x := range a.leaving {
		ind := x.Index()
		last := len(a.data) - 1
		if ind < 0 || ind > last {
			log.Panicf("container: remove element with bad index %d (len=%d)", ind, len(a.data))
		}
		if ind != last {
			a.data[ind] = a.data[last]
			a.data[ind].SetIndex(ind)
		}
		x.SetIndex(-1)
		a.data = a.data[:last]
	}
	for _, x := range a.pending {
		x.SetIndex(len(a.data))
		a.data = append(a.data, x)
	}
	a.pending = a.pending[:0]
	a.leaving = a.leaving[:0]
}
